package chaincode

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OwnershipStamp is one entry in an asset's custody history. Entries are
// prepended on every ownership change, so index 0 is the current holder.
type OwnershipStamp struct {
	Organization string `json:"organization"`
	Timestamp    string `json:"timestamp"`
}

// Asset is one item in an organization's private inventory. SubAssets are
// snapshots denormalized at attach time, not live references.
type Asset struct {
	AssetID   string            `json:"assetId"`
	Tags      map[string]string `json:"tags,omitempty"`
	SubAssets []Asset           `json:"subAssets,omitempty"`
	History   []OwnershipStamp  `json:"history"`
}

// Transaction is the persisted record of one custody transfer. Assets holds
// full snapshots captured at proposal time; flags only ever move from false
// to true.
type Transaction struct {
	TransactionID          string  `json:"transactionId"`
	Assets                 []Asset `json:"assets"`
	OwnerOrgID             string  `json:"ownerOrgId"`
	NewOwnerOrgID          string  `json:"newOwnerOrgId"`
	NewOwnerMSP            string  `json:"newOwnerMsp"`
	IsNewOwnerAccepted     bool    `json:"isNewOwnerAccepted"`
	IsCurrentOwnerApproved bool    `json:"isCurrentOwnerApproved"`
	IsOwnershipChanged     bool    `json:"isOwnershipChanged"`
	IsCancelled            bool    `json:"isCancelled"`
	CancelledAt            string  `json:"cancelledAt,omitempty"`
	IsRejected             bool    `json:"isRejected"`
	RejectedAt             string  `json:"rejectedAt,omitempty"`
	RejectReason           string  `json:"rejectReason,omitempty"`
	IsReturned             bool    `json:"isReturned"`
	ReturnedAt             string  `json:"returnedAt,omitempty"`
	ReturnReason           string  `json:"returnReason,omitempty"`
	IsGotBack              bool    `json:"isGotBack"`
	Created                string  `json:"created"`
}

// TransactionRef is one entry of the transaction index.
type TransactionRef struct {
	TransactionID string `json:"transactionId"`
	Created       string `json:"created"`
}

// Activity is one audit-trail entry.
type Activity struct {
	Initiated   string  `json:"initiated"`
	Description string  `json:"description"`
	Assets      []Asset `json:"assets,omitempty"`
	Action      string  `json:"action"`
	Timestamp   string  `json:"timestamp"`
}

// ActivityPage is the answer to a ReadLogs call: one window of the caller's
// entries plus the total number of entries that matched the caller.
type ActivityPage struct {
	Logs  []Activity `json:"logs"`
	Count int        `json:"count"`
}

// strictUnmarshal decodes JSON while rejecting unknown fields, so a stored
// record that drifted from the schema surfaces instead of silently losing
// data.
func strictUnmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func decodeAsset(b []byte) (*Asset, error) {
	var a Asset
	if err := strictUnmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode asset: %v: %w", err, ErrMalformedInput)
	}
	if a.AssetID == "" {
		return nil, fmt.Errorf("decode asset: missing assetId: %w", ErrMalformedInput)
	}
	return &a, nil
}

func decodeTransaction(b []byte) (*Transaction, error) {
	var t Transaction
	if err := strictUnmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %v: %w", err, ErrMalformedInput)
	}
	if t.TransactionID == "" {
		return nil, fmt.Errorf("decode transaction: missing transactionId: %w", ErrMalformedInput)
	}
	return &t, nil
}

// decodeStringList parses a caller-supplied JSON array argument. An empty
// argument means an empty list.
func decodeStringList(arg string) ([]string, error) {
	if arg == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(arg), &out); err != nil {
		return nil, fmt.Errorf("decode string list %q: %v: %w", arg, err, ErrMalformedInput)
	}
	return out, nil
}

// decodeAssetList parses a caller-supplied JSON array of full asset
// records.
func decodeAssetList(arg string) ([]Asset, error) {
	if arg == "" {
		return nil, nil
	}
	var out []Asset
	if err := json.Unmarshal([]byte(arg), &out); err != nil {
		return nil, fmt.Errorf("decode asset list: %v: %w", err, ErrMalformedInput)
	}
	for i := range out {
		if out[i].AssetID == "" {
			return nil, fmt.Errorf("asset at position %d missing assetId: %w", i, ErrMalformedInput)
		}
	}
	return out, nil
}

// decodeTags parses a caller-supplied JSON object argument. An empty
// argument means no tags.
func decodeTags(arg string) (map[string]string, error) {
	if arg == "" {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(arg), &out); err != nil {
		return nil, fmt.Errorf("decode tags %q: %v: %w", arg, err, ErrMalformedInput)
	}
	return out, nil
}
