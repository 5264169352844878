package chaincode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// SupplyContract keeps per-organization private inventories and runs the
// multi-step transaction protocol that moves assets between them. Each
// organization sees only its own collection; transaction records, pending
// returns and the activity log live in a collection shared by the trading
// parties.
type SupplyContract struct {
	contractapi.Contract
}

const (
	// transferCollection is the collection shared by the organizations
	// party to a transfer.
	transferCollection = "transferCollection"

	assetKeyPrefix       = "asset_"
	assetIndexKey        = "assetIds"
	transactionKeyPrefix = "transaction_"
	transactionIndexKey  = "transactionIds"
	returnKeyPrefix      = "return_"
	activityKey          = "activities"
)

// orgCollection names an organization's private partition.
func orgCollection(orgID string) string {
	return orgID + "PrivateCollection"
}

func assetKey(assetID string) string {
	return assetKeyPrefix + assetID
}

func transactionKey(txID string) string {
	return transactionKeyPrefix + txID
}

func returnKey(ownerOrgID string) string {
	return returnKeyPrefix + ownerOrgID
}

// getPrivate reads one key from a collection. A nil slice with a nil error
// means the key is absent.
func getPrivate(ctx contractapi.TransactionContextInterface, collection, key string) ([]byte, error) {
	b, err := ctx.GetStub().GetPrivateData(collection, key)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %v: %w", collection, key, err, ErrStoreFailure)
	}
	return b, nil
}

func putPrivateJSON(ctx contractapi.TransactionContextInterface, collection, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %v: %w", collection, key, err, ErrMalformedInput)
	}
	if err := ctx.GetStub().PutPrivateData(collection, key, b); err != nil {
		return fmt.Errorf("put %s/%s: %v: %w", collection, key, err, ErrStoreFailure)
	}
	return nil
}

func delPrivate(ctx contractapi.TransactionContextInterface, collection, key string) error {
	if err := ctx.GetStub().DelPrivateData(collection, key); err != nil {
		return fmt.Errorf("delete %s/%s: %v: %w", collection, key, err, ErrStoreFailure)
	}
	return nil
}

// probeExists reports whether a key holds a committed value without reading
// it: the private data hash is visible even where the value is not, and a
// non-empty hash means a non-empty value.
func probeExists(ctx contractapi.TransactionContextInterface, collection, key string) (bool, error) {
	h, err := ctx.GetStub().GetPrivateDataHash(collection, key)
	if err != nil {
		return false, fmt.Errorf("probe %s/%s: %v: %w", collection, key, err, ErrStoreFailure)
	}
	return len(h) > 0, nil
}

func txTimeRFC3339(ctx contractapi.TransactionContextInterface) (string, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return "", fmt.Errorf("get tx timestamp: %v: %w", err, ErrStoreFailure)
	}
	return ts.AsTime().UTC().Format(time.RFC3339Nano), nil
}

// callerMSP is the verified organization credential of the invoker; every
// role check compares against it.
func callerMSP(ctx contractapi.TransactionContextInterface) (string, error) {
	msp, err := ctx.GetClientIdentity().GetMSPID()
	if err != nil {
		return "", fmt.Errorf("caller identity: %v: %w", err, ErrStoreFailure)
	}
	return msp, nil
}

// done writes the success audit entry and wraps the payload. The audit
// write failing fails the whole invocation; a committed mutation without
// its audit entry is worse than a retry.
func (c *SupplyContract) done(ctx contractapi.TransactionContextInterface, action, description string, assets []Asset, payload any) (*Result, error) {
	if err := c.logIt(ctx, description, action, assets); err != nil {
		return nil, err
	}
	return doneResult(payload)
}

// fail audits an operation failure under the ERROR_-prefixed action and
// answers with an error envelope rather than a chaincode error, so the
// audit entry still commits. Only a failing audit write aborts the
// invocation outright.
func (c *SupplyContract) fail(ctx contractapi.TransactionContextInterface, action string, assets []Asset, opErr error) (*Result, error) {
	if err := c.logIt(ctx, opErr.Error(), "ERROR_"+action, assets); err != nil {
		return nil, err
	}
	return errResult(opErr)
}
