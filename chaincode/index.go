package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// The per-partition asset index is the registry of what a partition owns.
// All edits are set-semantic: replaying an insertion cannot duplicate an
// entry.

func readAssetIndex(ctx contractapi.TransactionContextInterface, collection string) ([]string, error) {
	b, err := getPrivate(ctx, collection, assetIndexKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	var ids []string
	if err := strictUnmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode asset index of %s: %v: %w", collection, err, ErrMalformedInput)
	}
	return ids, nil
}

func writeAssetIndex(ctx contractapi.TransactionContextInterface, collection string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return putPrivateJSON(ctx, collection, assetIndexKey, ids)
}

// insertIDFront prepends id unless it is already present.
func insertIDFront(ids []string, id string) []string {
	if containsID(ids, id) {
		return ids
	}
	return append([]string{id}, ids...)
}

func removeIDs(ids []string, gone []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if !containsID(gone, id) {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

func readTransactionIndex(ctx contractapi.TransactionContextInterface) ([]TransactionRef, error) {
	b, err := getPrivate(ctx, transferCollection, transactionIndexKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	var refs []TransactionRef
	if err := strictUnmarshal(b, &refs); err != nil {
		return nil, fmt.Errorf("decode transaction index: %v: %w", err, ErrMalformedInput)
	}
	return refs, nil
}

func writeTransactionIndex(ctx contractapi.TransactionContextInterface, refs []TransactionRef) error {
	if refs == nil {
		refs = []TransactionRef{}
	}
	return putPrivateJSON(ctx, transferCollection, transactionIndexKey, refs)
}

func appendTransactionRef(refs []TransactionRef, ref TransactionRef) []TransactionRef {
	for _, have := range refs {
		if have.TransactionID == ref.TransactionID {
			return refs
		}
	}
	return append(refs, ref)
}

func removeTransactionRef(refs []TransactionRef, txID string) []TransactionRef {
	out := refs[:0]
	for _, have := range refs {
		if have.TransactionID != txID {
			out = append(out, have)
		}
	}
	return out
}
