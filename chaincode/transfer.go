package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

const (
	actionInitiateTransaction = "INITIATE_TRANSACTION"
	actionAcceptTransaction   = "ACCEPT_TRANSACTION"
	actionTransferred         = "TRANSFERRED"
	actionOwned               = "OWNED"
	actionCancelTransaction   = "CANCEL_TRANSACTION"
	actionRejectTransaction   = "REJECT_TRANSACTION"
	actionReturnAssets        = "RETURN_ASSETS"
	actionGetBackAssets       = "GET_BACK_ASSETS"
	actionDeleteTransaction   = "DELETE_TRANSACTION"
)

func readTransactionRecord(ctx contractapi.TransactionContextInterface, txID string) (*Transaction, error) {
	b, err := getPrivate(ctx, transferCollection, transactionKey(txID))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	return decodeTransaction(b)
}

func writeTransaction(ctx contractapi.TransactionContextInterface, t *Transaction) error {
	return putPrivateJSON(ctx, transferCollection, transactionKey(t.TransactionID), t)
}

// forwardBlocked reports why a transaction can make no forward progress.
// Cancelled, rejected and returned are terminal for the accept/approve/own
// path.
func forwardBlocked(t *Transaction) error {
	switch {
	case t.IsCancelled:
		return fmt.Errorf("transaction %s is cancelled: %w", t.TransactionID, ErrInvalidState)
	case t.IsRejected:
		return fmt.Errorf("transaction %s is rejected: %w", t.TransactionID, ErrInvalidState)
	case t.IsReturned:
		return fmt.Errorf("transaction %s is returned: %w", t.TransactionID, ErrInvalidState)
	}
	return nil
}

// requireCounterparty gates transitions reserved for the receiving
// organization.
func requireCounterparty(t *Transaction, caller string) error {
	if caller != t.NewOwnerMSP {
		return fmt.Errorf("caller %s is not the counterparty of transaction %s: %w", caller, t.TransactionID, ErrForbidden)
	}
	return nil
}

// requireOwnerSide gates transitions reserved for the current owner. The
// record carries only the counterparty's MSP, so the owner side is anyone
// who is not the counterparty; the collection write policy is the outer
// gate.
func requireOwnerSide(t *Transaction, caller string) error {
	if caller == t.NewOwnerMSP {
		return fmt.Errorf("caller %s is the counterparty of transaction %s: %w", caller, t.TransactionID, ErrForbidden)
	}
	return nil
}

// CreateTransaction proposes a custody transfer: every named asset is
// snapshotted in full, lifted out of the owner's index (the records stay
// until the owner approves), and the transaction record is written with all
// flags down. Snapshot capture is all-or-nothing; an unresolvable asset
// fails the proposal.
func (c *SupplyContract) CreateTransaction(ctx contractapi.TransactionContextInterface, ownerOrgID, newOwnerOrgID, transactionID, assetIDsJSON, newOwnerMSP string) (*Result, error) {
	t, err := c.createTransaction(ctx, ownerOrgID, newOwnerOrgID, transactionID, assetIDsJSON, newOwnerMSP)
	if err != nil {
		return c.fail(ctx, actionInitiateTransaction, nil, err)
	}
	return c.done(ctx, actionInitiateTransaction,
		fmt.Sprintf("transaction %s initiated from %s to %s", transactionID, ownerOrgID, newOwnerOrgID), t.Assets, t)
}

func (c *SupplyContract) createTransaction(ctx contractapi.TransactionContextInterface, ownerOrgID, newOwnerOrgID, transactionID, assetIDsJSON, newOwnerMSP string) (*Transaction, error) {
	if ownerOrgID == "" || newOwnerOrgID == "" || transactionID == "" || newOwnerMSP == "" {
		return nil, fmt.Errorf("ownerOrgId, newOwnerOrgId, transactionId and newOwnerMsp are required: %w", ErrMalformedInput)
	}
	assetIDs, err := decodeStringList(assetIDsJSON)
	if err != nil {
		return nil, err
	}
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("at least one assetId is required: %w", ErrMalformedInput)
	}

	exists, err := probeExists(ctx, transferCollection, transactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrAlreadyExists)
	}

	collection := orgCollection(ownerOrgID)
	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return nil, err
	}

	var snapshots []Asset
	for _, id := range assetIDs {
		asset, err := readAssetRecord(ctx, collection, id)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, fmt.Errorf("asset %s not found in %s: %w", id, ownerOrgID, ErrNotFound)
		}
		// A record with no index entry is already lifted into another
		// transaction.
		if !containsID(ids, id) {
			return nil, fmt.Errorf("asset %s is already in transfer: %w", id, ErrInvalidState)
		}
		snapshots = append(snapshots, *asset)
	}

	if err := writeAssetIndex(ctx, collection, removeIDs(ids, assetIDs)); err != nil {
		return nil, err
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return nil, err
	}
	t := &Transaction{
		TransactionID: transactionID,
		Assets:        snapshots,
		OwnerOrgID:    ownerOrgID,
		NewOwnerOrgID: newOwnerOrgID,
		NewOwnerMSP:   newOwnerMSP,
		Created:       now,
	}
	if err := writeTransaction(ctx, t); err != nil {
		return nil, err
	}

	refs, err := readTransactionIndex(ctx)
	if err != nil {
		return nil, err
	}
	ref := TransactionRef{TransactionID: transactionID, Created: now}
	if err := writeTransactionIndex(ctx, appendTransactionRef(refs, ref)); err != nil {
		return nil, err
	}
	return t, nil
}

// AcceptTransaction is the counterparty's agreement to receive the assets.
func (c *SupplyContract) AcceptTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, err := c.acceptTransaction(ctx, transactionID)
	if err != nil {
		return c.fail(ctx, actionAcceptTransaction, nil, err)
	}
	return c.done(ctx, actionAcceptTransaction,
		fmt.Sprintf("transaction %s accepted by %s", transactionID, t.NewOwnerOrgID), t.Assets, t)
}

func (c *SupplyContract) acceptTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Transaction, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireCounterparty(t, caller); err != nil {
		return nil, err
	}
	if err := forwardBlocked(t); err != nil {
		return nil, err
	}

	t.IsNewOwnerAccepted = true
	if err := writeTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// TransferNow is the current owner's approval. It deletes the asset records
// from the owner's partition (the index entries left at proposal time) and
// hands the transaction to the counterparty for finalization.
func (c *SupplyContract) TransferNow(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, err := c.transferNow(ctx, transactionID)
	if err != nil {
		return c.fail(ctx, actionTransferred, nil, err)
	}
	return c.done(ctx, actionTransferred,
		fmt.Sprintf("transaction %s approved by %s", transactionID, t.OwnerOrgID), t.Assets, t)
}

func (c *SupplyContract) transferNow(ctx contractapi.TransactionContextInterface, transactionID string) (*Transaction, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerSide(t, caller); err != nil {
		return nil, err
	}
	if err := forwardBlocked(t); err != nil {
		return nil, err
	}
	if !t.IsNewOwnerAccepted {
		return nil, fmt.Errorf("transaction %s is not yet accepted by the counterparty: %w", transactionID, ErrInvalidState)
	}

	collection := orgCollection(t.OwnerOrgID)
	for _, asset := range t.Assets {
		if err := delPrivate(ctx, collection, assetKey(asset.AssetID)); err != nil {
			return nil, err
		}
	}

	t.IsCurrentOwnerApproved = true
	if err := writeTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// OwnAssets finalizes the transfer: the snapshots land in the
// counterparty's partition with a fresh custody stamp prepended, and
// ownership becomes externally observable.
func (c *SupplyContract) OwnAssets(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, err := c.ownAssets(ctx, transactionID)
	if err != nil {
		return c.fail(ctx, actionOwned, nil, err)
	}
	return c.done(ctx, actionOwned,
		fmt.Sprintf("transaction %s finalized, assets owned by %s", transactionID, t.NewOwnerOrgID), t.Assets, t)
}

func (c *SupplyContract) ownAssets(ctx contractapi.TransactionContextInterface, transactionID string) (*Transaction, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireCounterparty(t, caller); err != nil {
		return nil, err
	}
	if err := forwardBlocked(t); err != nil {
		return nil, err
	}
	if !t.IsCurrentOwnerApproved {
		return nil, fmt.Errorf("transaction %s is not yet approved by the owner: %w", transactionID, ErrInvalidState)
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return nil, err
	}
	stamped := make([]Asset, len(t.Assets))
	for i, asset := range t.Assets {
		asset.History = append([]OwnershipStamp{{Organization: t.NewOwnerOrgID, Timestamp: now}}, asset.History...)
		stamped[i] = asset
	}
	if err := pushAssets(ctx, t.NewOwnerOrgID, stamped); err != nil {
		return nil, err
	}

	t.IsOwnershipChanged = true
	if err := writeTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CancelTransaction withdraws a proposal before the counterparty accepts.
// The records never left the owner's partition, so restoring custody is a
// pure index re-insertion.
func (c *SupplyContract) CancelTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, err := c.cancelTransaction(ctx, transactionID)
	if err != nil {
		return c.fail(ctx, actionCancelTransaction, nil, err)
	}
	return c.done(ctx, actionCancelTransaction,
		fmt.Sprintf("transaction %s cancelled by %s", transactionID, t.OwnerOrgID), t.Assets, t)
}

func (c *SupplyContract) cancelTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Transaction, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerSide(t, caller); err != nil {
		return nil, err
	}
	if t.IsCancelled {
		return nil, fmt.Errorf("transaction %s is already cancelled: %w", transactionID, ErrInvalidState)
	}
	if t.IsRejected {
		return nil, fmt.Errorf("transaction %s is rejected: %w", transactionID, ErrInvalidState)
	}
	if t.IsNewOwnerAccepted {
		return nil, fmt.Errorf("transaction %s is already accepted, cancellation window closed: %w", transactionID, ErrInvalidState)
	}

	collection := orgCollection(t.OwnerOrgID)
	ids, err := readAssetIndex(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, asset := range t.Assets {
		ids = insertIDFront(ids, asset.AssetID)
	}
	if err := writeAssetIndex(ctx, collection, ids); err != nil {
		return nil, err
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return nil, err
	}
	t.IsCancelled = true
	t.CancelledAt = now
	if err := writeTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RejectTransaction is the counterparty's pre-finalize escape: the
// proposal-time snapshots are parked in the pending-return buffer keyed by
// the original owner, who picks them up with GetBackAssets.
func (c *SupplyContract) RejectTransaction(ctx contractapi.TransactionContextInterface, transactionID, reason string) (*Result, error) {
	t, err := c.rejectTransaction(ctx, transactionID, reason)
	if err != nil {
		return c.fail(ctx, actionRejectTransaction, nil, err)
	}
	return c.done(ctx, actionRejectTransaction,
		fmt.Sprintf("transaction %s rejected: %s", transactionID, reason), t.Assets, t)
}

func (c *SupplyContract) rejectTransaction(ctx contractapi.TransactionContextInterface, transactionID, reason string) (*Transaction, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireCounterparty(t, caller); err != nil {
		return nil, err
	}
	if t.IsOwnershipChanged {
		return nil, fmt.Errorf("transaction %s is finalized, use ReturnAssets: %w", transactionID, ErrInvalidState)
	}
	if t.IsCancelled || t.IsRejected {
		return nil, fmt.Errorf("transaction %s is already closed: %w", transactionID, ErrInvalidState)
	}

	if err := bufferReturns(ctx, t.OwnerOrgID, t.Assets); err != nil {
		return nil, err
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return nil, err
	}
	t.IsRejected = true
	t.RejectedAt = now
	t.RejectReason = reason
	if err := writeTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ReturnAssets is the post-finalize escape: the live records (finalize
// history included) leave the counterparty's partition immediately and wait
// in the pending-return buffer for the original owner.
func (c *SupplyContract) ReturnAssets(ctx contractapi.TransactionContextInterface, transactionID, reason string) (*Result, error) {
	t, returned, err := c.returnAssets(ctx, transactionID, reason)
	if err != nil {
		return c.fail(ctx, actionReturnAssets, nil, err)
	}
	return c.done(ctx, actionReturnAssets,
		fmt.Sprintf("transaction %s assets returned: %s", transactionID, reason), returned, t)
}

func (c *SupplyContract) returnAssets(ctx contractapi.TransactionContextInterface, transactionID, reason string) (*Transaction, []Asset, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := requireCounterparty(t, caller); err != nil {
		return nil, nil, err
	}
	if !t.IsOwnershipChanged {
		return nil, nil, fmt.Errorf("transaction %s is not finalized, use RejectTransaction: %w", transactionID, ErrInvalidState)
	}
	if t.IsReturned {
		return nil, nil, fmt.Errorf("transaction %s is already returned: %w", transactionID, ErrInvalidState)
	}

	assetIDs := make([]string, len(t.Assets))
	for i, asset := range t.Assets {
		assetIDs[i] = asset.AssetID
	}
	returned, err := pullAssets(ctx, t.NewOwnerOrgID, assetIDs)
	if err != nil {
		return nil, nil, err
	}
	if err := bufferReturns(ctx, t.OwnerOrgID, returned); err != nil {
		return nil, nil, err
	}

	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return nil, nil, err
	}
	t.IsReturned = true
	t.ReturnedAt = now
	t.ReturnReason = reason
	if err := writeTransaction(ctx, t); err != nil {
		return nil, nil, err
	}
	return t, returned, nil
}

// GetBackAssets is the original owner's pickup of everything pending in its
// return buffer: records merge back into the partition and the buffer is
// cleared.
func (c *SupplyContract) GetBackAssets(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, reclaimed, err := c.getBackAssets(ctx, transactionID)
	if err != nil {
		return c.fail(ctx, actionGetBackAssets, nil, err)
	}
	return c.done(ctx, actionGetBackAssets,
		fmt.Sprintf("%s got back %d asset(s) from transaction %s", t.OwnerOrgID, len(reclaimed), transactionID), reclaimed, t)
}

func (c *SupplyContract) getBackAssets(ctx contractapi.TransactionContextInterface, transactionID string) (*Transaction, []Asset, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, nil, err
	}
	caller, err := callerMSP(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := requireOwnerSide(t, caller); err != nil {
		return nil, nil, err
	}
	if !t.IsRejected && !t.IsReturned {
		return nil, nil, fmt.Errorf("transaction %s has nothing pending return: %w", transactionID, ErrInvalidState)
	}

	pending, err := readReturnBuffer(ctx, t.OwnerOrgID)
	if err != nil {
		return nil, nil, err
	}
	if len(pending) == 0 {
		return nil, nil, fmt.Errorf("no pending returns for %s: %w", t.OwnerOrgID, ErrNotFound)
	}

	if err := pushAssets(ctx, t.OwnerOrgID, pending); err != nil {
		return nil, nil, err
	}
	if err := delPrivate(ctx, transferCollection, returnKey(t.OwnerOrgID)); err != nil {
		return nil, nil, err
	}

	t.IsGotBack = true
	if err := writeTransaction(ctx, t); err != nil {
		return nil, nil, err
	}
	return t, pending, nil
}

// ReadTransaction answers one transaction record.
func (c *SupplyContract) ReadTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return errResult(err)
	}
	return doneResult(t)
}

// GetTransactions answers every live transaction the index lists, in
// creation order.
func (c *SupplyContract) GetTransactions(ctx contractapi.TransactionContextInterface) (*Result, error) {
	refs, err := readTransactionIndex(ctx)
	if err != nil {
		return errResult(err)
	}
	txs := []Transaction{}
	for _, ref := range refs {
		t, err := readTransactionRecord(ctx, ref.TransactionID)
		if err != nil {
			return errResult(err)
		}
		txs = append(txs, *t)
	}
	return doneResult(txs)
}

// DeleteTransaction is administrative cleanup, decoupled from the state
// machine: the record and its index entry go away regardless of flags. The
// endorsement policy of the shared collection is the gate.
func (c *SupplyContract) DeleteTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Result, error) {
	t, err := c.deleteTransaction(ctx, transactionID)
	if err != nil {
		return c.fail(ctx, actionDeleteTransaction, nil, err)
	}
	return c.done(ctx, actionDeleteTransaction,
		fmt.Sprintf("transaction %s deleted", transactionID), nil, t)
}

func (c *SupplyContract) deleteTransaction(ctx contractapi.TransactionContextInterface, transactionID string) (*Transaction, error) {
	t, err := readTransactionRecord(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := delPrivate(ctx, transferCollection, transactionKey(transactionID)); err != nil {
		return nil, err
	}
	refs, err := readTransactionIndex(ctx)
	if err != nil {
		return nil, err
	}
	if err := writeTransactionIndex(ctx, removeTransactionRef(refs, transactionID)); err != nil {
		return nil, err
	}
	return t, nil
}

// readReturnBuffer loads the assets parked for an owner's pickup. Absence
// means nothing is pending.
func readReturnBuffer(ctx contractapi.TransactionContextInterface, ownerOrgID string) ([]Asset, error) {
	b, err := getPrivate(ctx, transferCollection, returnKey(ownerOrgID))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	var assets []Asset
	if err := strictUnmarshal(b, &assets); err != nil {
		return nil, fmt.Errorf("decode return buffer of %s: %v: %w", ownerOrgID, err, ErrMalformedInput)
	}
	return assets, nil
}

// bufferReturns merges assets into the owner's pending-return buffer,
// overwriting a buffered asset that shares an ID.
func bufferReturns(ctx contractapi.TransactionContextInterface, ownerOrgID string, assets []Asset) error {
	pending, err := readReturnBuffer(ctx, ownerOrgID)
	if err != nil {
		return err
	}
	for _, asset := range assets {
		replaced := false
		for i, have := range pending {
			if have.AssetID == asset.AssetID {
				pending[i] = asset
				replaced = true
				break
			}
		}
		if !replaced {
			pending = append(pending, asset)
		}
	}
	return putPrivateJSON(ctx, transferCollection, returnKey(ownerOrgID), pending)
}
