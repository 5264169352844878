package chaincode

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error taxonomy for the whole contract surface. Operation code wraps these
// with fmt.Errorf and %w; the Result envelope reports the matching kind.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidState   = errors.New("invalid state")
	ErrMalformedInput = errors.New("malformed input")
	ErrStoreFailure   = errors.New("store failure")
)

// Result is the uniform envelope returned by every core operation. Message
// is "Done" or "Error"; Kind carries the taxonomy label on error; Details
// holds the operation payload on success.
type Result struct {
	Message string          `json:"message"`
	Kind    string          `json:"kind,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

const (
	statusDone  = "Done"
	statusError = "Error"
)

func kindOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrMalformedInput):
		return "MalformedInput"
	default:
		return "StoreFailure"
	}
}

// doneResult wraps a payload in a success envelope. A nil payload yields a
// bare "Done".
func doneResult(payload any) (*Result, error) {
	r := &Result{Message: statusDone}
	if payload == nil {
		return r, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal result payload: %w", err)
	}
	r.Details = b
	return r, nil
}

// errResult wraps a failure in an error envelope without writing an audit
// entry. Read-only operations use it directly; mutations go through
// SupplyContract.fail so the failure is audited first.
func errResult(opErr error) (*Result, error) {
	return &Result{Message: statusError, Kind: kindOf(opErr), Reason: opErr.Error()}, nil
}
