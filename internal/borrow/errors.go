package borrow

import (
	"context"
	"errors"
	"fmt"

	"fyBorrow/internal/quote"
	"fyBorrow/internal/revert"
)

var (
	// ErrWalletUnavailable is returned when no signer is connected.
	ErrWalletUnavailable = errors.New("wallet unavailable")
	// ErrFlowInProgress rejects a submission while another one is running.
	ErrFlowInProgress = errors.New("a borrow is already in progress")
	// ErrStaleFlow is returned to a submission that was abandoned or superseded.
	ErrStaleFlow = errors.New("borrow was abandoned")
	// ErrPriceMoved is returned when the pool would pay less than the slippage floor.
	ErrPriceMoved = errors.New("price moved below the slippage floor")
)

// ValidationError blocks a submission before any transaction is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StepError is the terminal failure of one flow step.
type StepError struct {
	Step  Step
	Cause error
	// Revert is set when Cause carried a recognisable revert.
	Revert *revert.Classification
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Step, e.Message())
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// Message is the human-readable reason, never a raw payload.
func (e *StepError) Message() string {
	var qerr *quote.Error
	switch {
	case errors.As(e.Cause, &qerr):
		if qerr.Cause != nil && !qerr.Cause.IsUnknown() {
			return qerr.Reason.Describe() + " (" + qerr.Cause.Describe() + ")"
		}
		return qerr.Reason.Describe()
	case errors.Is(e.Cause, ErrPriceMoved):
		return "price moved beyond the slippage limit, the borrowed fyToken stays in your wallet"
	case e.Revert != nil && !e.Revert.IsUnknown():
		return e.Revert.Describe()
	case errors.Is(e.Cause, context.Canceled):
		return "cancelled"
	case errors.Is(e.Cause, context.DeadlineExceeded):
		return "timed out waiting for the network"
	case e.Cause != nil:
		return stepFallback[e.Step]
	default:
		return "unknown failure"
	}
}

var stepFallback = map[Step]string{
	StepApproving:             "collateral approval was rejected",
	StepOpeningPosition:       "could not open a position",
	StepSupplyingAndBorrowing: "could not deposit collateral and borrow",
	StepSwapping:              "could not swap borrowed fyToken for base",
}
