package execution

import "errors"

var (
	// ErrRiskRejected is wrapped by every RejectedError.
	ErrRiskRejected = errors.New("risk rejected order")

	// ErrAudit is returned alongside a valid order state when the audit
	// record could not be written.
	ErrAudit = errors.New("audit write failed")
)

// RejectedError carries the reason the risk engine gave.
type RejectedError struct {
	Reason          string
	BlockNewEntries bool
}

func (e *RejectedError) Error() string {
	return "risk rejected order: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return ErrRiskRejected }
