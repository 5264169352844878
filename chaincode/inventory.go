package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	actionCreateAsset  = "CREATE_ASSET"
	actionUpdateAsset  = "UPDATE_ASSET"
	actionRemoveAssets = "REMOVE_ASSETS"
	actionPushAssets   = "PUSH_ASSETS"
	actionPullAssets   = "PULL_ASSETS"
)

// readAssetRecord loads one asset record from a collection. A nil asset
// with a nil error means the record is absent.
func readAssetRecord(ctx contractapi.TransactionContextInterface, collection, assetID string) (*Asset, error) {
	b, err := getPrivate(ctx, collection, assetKey(assetID))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return decodeAsset(b)
}

// resolveSubAssets snapshots the named records out of the same partition.
// Any missing record fails the whole resolution.
func resolveSubAssets(ctx contractapi.TransactionContextInterface, collection string, subAssetIDs []string) ([]Asset, error) {
	var subs []Asset
	for _, id := range subAssetIDs {
		sub, err := readAssetRecord(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, fmt.Errorf("sub-asset %s has no record in %s: %w", id, collection, ErrNotFound)
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

// CreateAsset inserts a new asset into an organization's private partition:
// index entry first, then the record, with a single-entry custody history.
// Sub-asset IDs are resolved against the same partition and denormalized
// into the record as snapshots.
func (c *SupplyContract) CreateAsset(ctx contractapi.TransactionContextInterface, orgID, assetID, tagsJSON, subAssetIDsJSON string) (*Result, error) {
	asset, err := c.createAsset(ctx, orgID, assetID, tagsJSON, subAssetIDsJSON)
	if err != nil {
		return c.fail(ctx, actionCreateAsset, nil, err)
	}
	return c.done(ctx, actionCreateAsset,
		fmt.Sprintf("asset %s created in %s", assetID, orgID), []Asset{*asset}, asset)
}

func (c *SupplyContract) createAsset(ctx contractapi.TransactionContextInterface, orgID, assetID, tagsJSON, subAssetIDsJSON string) (*Asset, error) {
	if orgID == "" || assetID == "" {
		return nil, fmt.Errorf("orgId and assetId are required: %w", ErrMalformedInput)
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	subIDs, err := decodeStringList(subAssetIDsJSON)
	if err != nil {
		return nil, err
	}

	collection := orgCollection(orgID)
	subs, err := resolveSubAssets(ctx, collection, subIDs)
	if err != nil {
		return nil, err
	}
	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return nil, err
	}

	asset := &Asset{
		AssetID:   assetID,
		Tags:      tags,
		SubAssets: subs,
		History:   []OwnershipStamp{{Organization: orgID, Timestamp: now}},
	}

	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := writeAssetIndex(ctx, collection, insertIDFront(ids, assetID)); err != nil {
		return nil, err
	}
	if err := putPrivateJSON(ctx, collection, assetKey(assetID), asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// UpdateAsset overwrites an asset's tags and sub-assets in place. Existence
// is gated by the probe, not the index, so an asset lifted out of the index
// by an in-flight transaction can still be amended; custody history is
// preserved untouched.
func (c *SupplyContract) UpdateAsset(ctx contractapi.TransactionContextInterface, orgID, assetID, tagsJSON, subAssetIDsJSON string) (*Result, error) {
	asset, err := c.updateAsset(ctx, orgID, assetID, tagsJSON, subAssetIDsJSON)
	if err != nil {
		return c.fail(ctx, actionUpdateAsset, nil, err)
	}
	return c.done(ctx, actionUpdateAsset,
		fmt.Sprintf("asset %s updated in %s", assetID, orgID), []Asset{*asset}, asset)
}

func (c *SupplyContract) updateAsset(ctx contractapi.TransactionContextInterface, orgID, assetID, tagsJSON, subAssetIDsJSON string) (*Asset, error) {
	if orgID == "" || assetID == "" {
		return nil, fmt.Errorf("orgId and assetId are required: %w", ErrMalformedInput)
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return nil, err
	}
	subIDs, err := decodeStringList(subAssetIDsJSON)
	if err != nil {
		return nil, err
	}

	collection := orgCollection(orgID)
	exists, err := probeExists(ctx, collection, assetKey(assetID))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("asset %s does not exist in %s: %w", assetID, orgID, ErrNotFound)
	}

	asset, err := readAssetRecord(ctx, collection, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %s does not exist in %s: %w", assetID, orgID, ErrNotFound)
	}
	subs, err := resolveSubAssets(ctx, collection, subIDs)
	if err != nil {
		return nil, err
	}

	asset.Tags = tags
	asset.SubAssets = subs
	if err := putPrivateJSON(ctx, collection, assetKey(assetID), asset); err != nil {
		return nil, err
	}
	return asset, nil
}

// RemoveAssets drops the given IDs from the index and deletes their
// records. Prior existence is not verified; removing an absent asset is a
// no-op.
func (c *SupplyContract) RemoveAssets(ctx contractapi.TransactionContextInterface, orgID, assetIDsJSON string) (*Result, error) {
	removed, err := c.removeAssets(ctx, orgID, assetIDsJSON)
	if err != nil {
		return c.fail(ctx, actionRemoveAssets, nil, err)
	}
	return c.done(ctx, actionRemoveAssets,
		fmt.Sprintf("%d asset(s) removed from %s", len(removed), orgID), nil, removed)
}

func (c *SupplyContract) removeAssets(ctx contractapi.TransactionContextInterface, orgID, assetIDsJSON string) ([]string, error) {
	if orgID == "" {
		return nil, fmt.Errorf("orgId is required: %w", ErrMalformedInput)
	}
	assetIDs, err := decodeStringList(assetIDsJSON)
	if err != nil {
		return nil, err
	}

	collection := orgCollection(orgID)
	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := writeAssetIndex(ctx, collection, removeIDs(ids, assetIDs)); err != nil {
		return nil, err
	}
	for _, id := range assetIDs {
		if err := delPrivate(ctx, collection, assetKey(id)); err != nil {
			return nil, err
		}
	}
	return assetIDs, nil
}

// ReadAsset answers one asset record from the organization's partition.
func (c *SupplyContract) ReadAsset(ctx contractapi.TransactionContextInterface, orgID, assetID string) (*Result, error) {
	if orgID == "" || assetID == "" {
		return errResult(fmt.Errorf("orgId and assetId are required: %w", ErrMalformedInput))
	}
	asset, err := readAssetRecord(ctx, orgCollection(orgID), assetID)
	if err != nil {
		return errResult(err)
	}
	if asset == nil {
		return errResult(fmt.Errorf("asset %s not found in %s: %w", assetID, orgID, ErrNotFound))
	}
	return doneResult(asset)
}

// ReadAssets answers every asset the partition's index lists, in index
// order. The index is the registry of what the partition owns, so a listed
// ID with no readable record is reported rather than skipped.
func (c *SupplyContract) ReadAssets(ctx contractapi.TransactionContextInterface, orgID string) (*Result, error) {
	if orgID == "" {
		return errResult(fmt.Errorf("orgId is required: %w", ErrMalformedInput))
	}
	collection := orgCollection(orgID)
	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return errResult(err)
	}
	assets := []Asset{}
	for _, id := range ids {
		asset, err := readAssetRecord(ctx, collection, id)
		if err != nil {
			return errResult(err)
		}
		if asset == nil {
			return errResult(fmt.Errorf("indexed asset %s has no record in %s: %w", id, orgID, ErrNotFound))
		}
		assets = append(assets, *asset)
	}
	return doneResult(assets)
}

// PushAssets merges caller-supplied asset records into an organization's
// partition. The records are taken as authoritative, which is the receiving
// side of a pull: inventory handed over out of band lands here.
func (c *SupplyContract) PushAssets(ctx contractapi.TransactionContextInterface, orgID, assetsJSON string) (*Result, error) {
	assets, err := c.pushAssetsArg(ctx, orgID, assetsJSON)
	if err != nil {
		return c.fail(ctx, actionPushAssets, nil, err)
	}
	return c.done(ctx, actionPushAssets,
		fmt.Sprintf("%d asset(s) pushed into %s", len(assets), orgID), assets, assets)
}

func (c *SupplyContract) pushAssetsArg(ctx contractapi.TransactionContextInterface, orgID, assetsJSON string) ([]Asset, error) {
	if orgID == "" {
		return nil, fmt.Errorf("orgId is required: %w", ErrMalformedInput)
	}
	assets, err := decodeAssetList(assetsJSON)
	if err != nil {
		return nil, err
	}
	if err := pushAssets(ctx, orgID, assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// PullAssets lifts the named assets out of an organization's partition and
// answers their snapshots, without naming a destination.
func (c *SupplyContract) PullAssets(ctx contractapi.TransactionContextInterface, orgID, assetIDsJSON string) (*Result, error) {
	pulled, err := c.pullAssetsArg(ctx, orgID, assetIDsJSON)
	if err != nil {
		return c.fail(ctx, actionPullAssets, nil, err)
	}
	return c.done(ctx, actionPullAssets,
		fmt.Sprintf("%d asset(s) pulled from %s", len(pulled), orgID), pulled, pulled)
}

func (c *SupplyContract) pullAssetsArg(ctx contractapi.TransactionContextInterface, orgID, assetIDsJSON string) ([]Asset, error) {
	if orgID == "" {
		return nil, fmt.Errorf("orgId is required: %w", ErrMalformedInput)
	}
	assetIDs, err := decodeStringList(assetIDsJSON)
	if err != nil {
		return nil, err
	}
	return pullAssets(ctx, orgID, assetIDs)
}

// pushAssets merges assets into a partition: IDs are appended to the index
// only if absent, records are overwritten unconditionally. The inbound
// records are authoritative; this is how assets come back from a rejected
// or returned transaction.
func pushAssets(ctx contractapi.TransactionContextInterface, orgID string, assets []Asset) error {
	collection := orgCollection(orgID)
	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		if !containsID(ids, asset.AssetID) {
			ids = append(ids, asset.AssetID)
		}
	}
	if err := writeAssetIndex(ctx, collection, ids); err != nil {
		return err
	}
	for _, asset := range assets {
		asset := asset
		if err := putPrivateJSON(ctx, collection, assetKey(asset.AssetID), &asset); err != nil {
			return err
		}
	}
	return nil
}

// pullAssets lifts assets out of a partition: records are loaded and
// verified before anything is written, then the index entries and records
// go together. A missing record fails the whole pull and leaves the
// partition untouched.
func pullAssets(ctx contractapi.TransactionContextInterface, orgID string, assetIDs []string) ([]Asset, error) {
	collection := orgCollection(orgID)

	var pulled []Asset
	for _, id := range assetIDs {
		asset, err := readAssetRecord(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, fmt.Errorf("asset %s has no record in %s: %w", id, orgID, ErrNotFound)
		}
		pulled = append(pulled, *asset)
	}

	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := writeAssetIndex(ctx, collection, removeIDs(ids, assetIDs)); err != nil {
		return nil, err
	}
	for _, id := range assetIDs {
		if err := delPrivate(ctx, collection, assetKey(id)); err != nil {
			return nil, err
		}
	}
	return pulled, nil
}
