package chaincode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndRead(t *testing.T) {
	stub := newFakeStub()
	c := &RegistryContract{}
	ctx := ctxAs(stub, "Org1MSP")

	require.NoError(t, c.CreateAsset(ctx, "R1", "org1", `{"type":"container"}`))
	stub.tick()

	asset, err := c.ReadAsset(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, "org1", asset.Owner)
	require.Equal(t, map[string]string{"type": "container"}, asset.Tags)
	require.EqualValues(t, 1, asset.Version)

	err = c.CreateAsset(ctx, "R1", "org1", "")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegistryUpdateBumpsVersion(t *testing.T) {
	stub := newFakeStub()
	c := &RegistryContract{}
	ctx := ctxAs(stub, "Org1MSP")

	require.NoError(t, c.CreateAsset(ctx, "R1", "org1", ""))
	stub.tick()
	require.NoError(t, c.UpdateOwner(ctx, "R1", "org2"))
	stub.tick()
	require.NoError(t, c.UpdateTags(ctx, "R1", `{"state":"shipped"}`))
	stub.tick()

	asset, err := c.ReadAsset(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, "org2", asset.Owner)
	require.Equal(t, map[string]string{"state": "shipped"}, asset.Tags)
	require.EqualValues(t, 3, asset.Version)
}

func TestRegistryDelete(t *testing.T) {
	stub := newFakeStub()
	c := &RegistryContract{}
	ctx := ctxAs(stub, "Org1MSP")

	require.NoError(t, c.CreateAsset(ctx, "R1", "org1", ""))
	stub.tick()
	require.NoError(t, c.DeleteAsset(ctx, "R1"))
	stub.tick()

	exists, err := c.AssetExists(ctx, "R1")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = c.ReadAsset(ctx, "R1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, c.DeleteAsset(ctx, "R1"), ErrNotFound)
}

func TestRegistryGetAllAssets(t *testing.T) {
	stub := newFakeStub()
	c := &RegistryContract{}
	ctx := ctxAs(stub, "Org1MSP")

	for _, id := range []string{"R2", "R1", "R3"} {
		require.NoError(t, c.CreateAsset(ctx, id, "org1", ""))
		stub.tick()
	}

	all, err := c.GetAllAssets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "R1", all[0].ID)
	require.Equal(t, "R3", all[2].ID)
}

func TestRegistryHistory(t *testing.T) {
	stub := newFakeStub()
	c := &RegistryContract{}
	ctx := ctxAs(stub, "Org1MSP")

	require.NoError(t, c.CreateAsset(ctx, "R1", "org1", ""))
	stub.tick()
	require.NoError(t, c.UpdateOwner(ctx, "R1", "org2"))
	stub.tick()
	require.NoError(t, c.DeleteAsset(ctx, "R1"))
	stub.tick()

	changes, err := c.GetHistory(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, changes, 3)

	// Newest first: the delete, the owner change, the creation.
	require.True(t, changes[0].IsDelete)
	require.Nil(t, changes[0].Asset)
	require.Equal(t, "org2", changes[1].Asset.Owner)
	require.Equal(t, "org1", changes[2].Asset.Owner)

	distinct := map[string]bool{}
	for _, change := range changes {
		distinct[change.TxID] = true
		require.NotEmpty(t, change.Timestamp)
	}
	require.Len(t, distinct, 3)
}
