package chaincode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// RegistryContract is the public world-state registry that sits beside the
// private inventories: plain CRUD on keys every channel member can read,
// plus the per-key change history the ledger already keeps.
type RegistryContract struct {
	contractapi.Contract
}

// RegistryAsset is a public registry entry.
type RegistryAsset struct {
	ID        string            `json:"id"`
	Owner     string            `json:"owner"`
	Tags      map[string]string `json:"tags,omitempty"`
	CreatedAt string            `json:"createdAt"`
	UpdatedAt string            `json:"updatedAt"`
	Version   int64             `json:"version"`
}

// RegistryChange is one entry of a registry key's change history.
type RegistryChange struct {
	TxID      string         `json:"txId"`
	Timestamp string         `json:"timestamp"`
	IsDelete  bool           `json:"isDelete"`
	Asset     *RegistryAsset `json:"asset,omitempty"`
}

func (c *RegistryContract) CreateAsset(ctx contractapi.TransactionContextInterface, id string, owner string, tagsJSON string) error {
	id = strings.TrimSpace(id)
	owner = strings.TrimSpace(owner)

	if id == "" {
		return fmt.Errorf("id is required: %w", ErrMalformedInput)
	}
	if owner == "" {
		return fmt.Errorf("owner is required: %w", ErrMalformedInput)
	}
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return err
	}

	exists, err := c.AssetExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("asset %s: %w", id, ErrAlreadyExists)
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return err
	}

	asset := RegistryAsset{
		ID:        id,
		Owner:     owner,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	b, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal asset: %w", err)
	}

	return ctx.GetStub().PutState(id, b)
}

func (c *RegistryContract) ReadAsset(ctx contractapi.TransactionContextInterface, id string) (*RegistryAsset, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id is required: %w", ErrMalformedInput)
	}

	b, err := ctx.GetStub().GetState(id)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}

	var asset RegistryAsset
	if err := json.Unmarshal(b, &asset); err != nil {
		return nil, fmt.Errorf("unmarshal asset: %w", err)
	}
	return &asset, nil
}

func (c *RegistryContract) UpdateOwner(ctx contractapi.TransactionContextInterface, id string, newOwner string) error {
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return fmt.Errorf("newOwner is required: %w", ErrMalformedInput)
	}

	asset, err := c.ReadAsset(ctx, id)
	if err != nil {
		return err
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return err
	}

	asset.Owner = newOwner
	asset.UpdatedAt = now
	asset.Version++

	b, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal asset: %w", err)
	}
	return ctx.GetStub().PutState(asset.ID, b)
}

func (c *RegistryContract) UpdateTags(ctx contractapi.TransactionContextInterface, id string, tagsJSON string) error {
	tags, err := decodeTags(tagsJSON)
	if err != nil {
		return err
	}

	asset, err := c.ReadAsset(ctx, id)
	if err != nil {
		return err
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return err
	}

	asset.Tags = tags
	asset.UpdatedAt = now
	asset.Version++

	b, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal asset: %w", err)
	}
	return ctx.GetStub().PutState(asset.ID, b)
}

func (c *RegistryContract) DeleteAsset(ctx contractapi.TransactionContextInterface, id string) error {
	_, err := c.ReadAsset(ctx, id)
	if err != nil {
		return err
	}
	return ctx.GetStub().DelState(id)
}

func (c *RegistryContract) AssetExists(ctx contractapi.TransactionContextInterface, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("id is required: %w", ErrMalformedInput)
	}

	b, err := ctx.GetStub().GetState(id)
	if err != nil {
		return false, fmt.Errorf("get state: %w", err)
	}
	return b != nil, nil
}

func (c *RegistryContract) GetAllAssets(ctx contractapi.TransactionContextInterface) ([]*RegistryAsset, error) {
	iter, err := ctx.GetStub().GetStateByRange("", "")
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer iter.Close()

	var out []*RegistryAsset
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		var a RegistryAsset
		if err := json.Unmarshal(kv.Value, &a); err != nil {
			return nil, fmt.Errorf("unmarshal: %w", err)
		}
		out = append(out, &a)
	}
	return out, nil
}

// GetHistory answers the ledger's change history for one registry key,
// newest first as the peer returns it. Deleted revisions carry no asset
// payload.
func (c *RegistryContract) GetHistory(ctx contractapi.TransactionContextInterface, id string) ([]*RegistryChange, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("id is required: %w", ErrMalformedInput)
	}

	iter, err := ctx.GetStub().GetHistoryForKey(id)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer iter.Close()

	var out []*RegistryChange
	for iter.HasNext() {
		km, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iter next: %w", err)
		}
		change := &RegistryChange{TxID: km.TxId, IsDelete: km.IsDelete}
		if km.Timestamp != nil {
			change.Timestamp = km.Timestamp.AsTime().UTC().Format(time.RFC3339Nano)
		}
		if !km.IsDelete && len(km.Value) > 0 {
			var a RegistryAsset
			if err := json.Unmarshal(km.Value, &a); err != nil {
				return nil, fmt.Errorf("unmarshal revision: %w", err)
			}
			change.Asset = &a
		}
		out = append(out, change)
	}
	return out, nil
}
