package quote

import (
	"errors"
	"fmt"

	"fyBorrow/internal/revert"
)

// Reason tags why a quote could not be produced.
type Reason string

const (
	ReasonInvalidRequest        Reason = "InvalidRequest"
	ReasonStaleCache            Reason = "StaleCache"
	ReasonPendingSettlement     Reason = "PendingSettlement"
	ReasonInsufficientLiquidity Reason = "InsufficientLiquidity"
	ReasonPreviewUnavailable    Reason = "PreviewUnavailable"
	ReasonPreviewReverted       Reason = "PreviewReverted"
	ReasonNegativeRateRejected  Reason = "NegativeRateRejected"
	ReasonQuoteBelowDesired     Reason = "QuoteBelowDesired"
)

// Describe renders a human-readable explanation.
func (r Reason) Describe() string {
	switch r {
	case ReasonInvalidRequest:
		return "requested amount must be greater than zero"
	case ReasonStaleCache:
		return "pool reserves are out of sync, try again shortly"
	case ReasonPendingSettlement:
		return "pool has unsettled transfers, try again shortly"
	case ReasonInsufficientLiquidity:
		return "not enough liquidity in the pool for this amount"
	case ReasonPreviewUnavailable:
		return "pool could not price this amount"
	case ReasonPreviewReverted:
		return "pool rejected the trade"
	case ReasonNegativeRateRejected:
		return "trade would push the pool to a negative interest rate"
	case ReasonQuoteBelowDesired:
		return "pool price changed while quoting"
	default:
		return string(r)
	}
}

// Error is returned for every quote failure.
type Error struct {
	Reason Reason
	// Cause is set when the failure came from a classified revert.
	Cause *revert.Classification
}

func (e *Error) Error() string {
	if e.Cause != nil && !e.Cause.IsUnknown() {
		return fmt.Sprintf("quote %s: %s (%s)", e.Reason, e.Reason.Describe(), e.Cause.Describe())
	}
	return fmt.Sprintf("quote %s: %s", e.Reason, e.Reason.Describe())
}

// ReasonOf extracts the quote failure reason from err.
func ReasonOf(err error) (Reason, bool) {
	var qerr *Error
	if errors.As(err, &qerr) {
		return qerr.Reason, true
	}
	return "", false
}

func fail(reason Reason) error {
	return &Error{Reason: reason}
}
