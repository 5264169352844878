package chaincode

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
)

// The activity log is one append-only list under a well-known key in the
// shared collection, most recent entry first. It is an audit trail, not a
// source of truth: no state-machine decision reads it.

func readActivities(ctx contractapi.TransactionContextInterface) ([]Activity, error) {
	b, err := getPrivate(ctx, transferCollection, activityKey)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	var log []Activity
	if err := strictUnmarshal(b, &log); err != nil {
		return nil, fmt.Errorf("decode activity log: %v: %w", err, ErrMalformedInput)
	}
	return log, nil
}

// logIt prepends one entry attributed to the calling organization and
// writes the list back.
func (c *SupplyContract) logIt(ctx contractapi.TransactionContextInterface, description, action string, assets []Asset) error {
	caller, err := callerMSP(ctx)
	if err != nil {
		return err
	}
	now, err := txTimeRFC3339(ctx)
	if err != nil {
		return err
	}
	log, err := readActivities(ctx)
	if err != nil {
		return err
	}
	entry := Activity{
		Initiated:   caller,
		Description: description,
		Assets:      assets,
		Action:      action,
		Timestamp:   now,
	}
	return putPrivateJSON(ctx, transferCollection, activityKey, append([]Activity{entry}, log...))
}

// ReadLogs answers the caller's slice of the audit trail: entries initiated
// by the caller's organization, windowed to [start, start+offset). Count is
// the total number of matching entries before windowing. An offset of zero
// or less disables the window and returns every match.
func (c *SupplyContract) ReadLogs(ctx contractapi.TransactionContextInterface, start, offset int) (*Result, error) {
	caller, err := callerMSP(ctx)
	if err != nil {
		return errResult(err)
	}
	log, err := readActivities(ctx)
	if err != nil {
		return errResult(err)
	}

	mine := []Activity{}
	for _, entry := range log {
		if entry.Initiated == caller {
			mine = append(mine, entry)
		}
	}
	count := len(mine)

	if offset > 0 {
		if start < 0 {
			start = 0
		}
		if start >= count {
			mine = []Activity{}
		} else {
			end := start + offset
			if end > count {
				end = count
			}
			mine = mine[start:end]
		}
	}
	return doneResult(&ActivityPage{Logs: mine, Count: count})
}
