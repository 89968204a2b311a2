package revert

import (
	"fmt"
	"math/big"
)

// Source names the error schema a revert was matched against.
type Source string

const (
	SourcePool    Source = "pool"
	SourceHelper  Source = "helper"
	SourceUnknown Source = "unknown"
)

// HintKind tags business-meaningful reverts.
type HintKind string

const (
	HintNotEnoughInput HintKind = "not_enough_input"
	HintSlippage       HintKind = "slippage"
)

// Names of errors the client reacts to.
const (
	ErrNameNotEnoughInput = "NotEnoughInputAvailable"
	ErrNameSlippage       = "SlippageExceeded"
	ErrNameNegativeRate   = "NegativeInterestRatesNotAllowed"
	errNameString         = "Error"
	errNamePanic          = "Panic"
)

// Hint is a typed view of a recognised revert. Amount fields are nil when the
// failure only exposed a selector.
type Hint struct {
	Kind HintKind `json:"kind"`

	Available *big.Int `json:"available,omitempty"`
	Needed    *big.Int `json:"needed,omitempty"`

	Observed *big.Int `json:"observed,omitempty"`
	Min      *big.Int `json:"min,omitempty"`
	Max      *big.Int `json:"max,omitempty"`
}

// Classification is the result of classifying a failure. It is never partially
// built: unknown failures carry SourceUnknown and an empty name.
type Classification struct {
	Selector       string        `json:"selector,omitempty"`
	MatchedAgainst Source        `json:"matched_against"`
	ErrorName      string        `json:"error_name,omitempty"`
	Args           []interface{} `json:"args,omitempty"`
	Hint           *Hint         `json:"hint,omitempty"`
}

func unknown() Classification {
	return Classification{MatchedAgainst: SourceUnknown}
}

// IsUnknown reports whether nothing at all could be recovered.
func (c Classification) IsUnknown() bool {
	return c.Selector == "" && c.ErrorName == ""
}

// IsNegativeRate reports a pool rejection of a trade that would invert the rate.
func (c Classification) IsNegativeRate() bool {
	return c.ErrorName == ErrNameNegativeRate
}

// Describe renders a human-readable reason.
func (c Classification) Describe() string {
	if c.Hint != nil {
		switch c.Hint.Kind {
		case HintNotEnoughInput:
			if c.Hint.Available != nil && c.Hint.Needed != nil {
				return fmt.Sprintf("not enough input available: have %s, need %s", c.Hint.Available, c.Hint.Needed)
			}
			return "not enough input available"
		case HintSlippage:
			if c.Hint.Observed != nil && c.Hint.Min != nil && c.Hint.Max != nil {
				return fmt.Sprintf("price moved beyond slippage tolerance: ratio %s outside [%s, %s]", c.Hint.Observed, c.Hint.Min, c.Hint.Max)
			}
			return "price moved beyond slippage tolerance"
		}
	}

	switch {
	case c.IsNegativeRate():
		return "trade would push the pool to a negative interest rate"
	case c.ErrorName == errNameString && len(c.Args) == 1:
		return fmt.Sprintf("reverted: %v", c.Args[0])
	case c.ErrorName == errNamePanic && len(c.Args) == 1:
		return fmt.Sprintf("contract panicked with code %v", c.Args[0])
	case c.ErrorName != "":
		return fmt.Sprintf("%s reverted with %s", c.MatchedAgainst, c.ErrorName)
	case c.Selector != "":
		return fmt.Sprintf("reverted with unrecognised error %s", c.Selector)
	default:
		return "remote call failed without a recognisable revert reason"
	}
}

func promoteHint(c Classification) Classification {
	switch c.ErrorName {
	case ErrNameNotEnoughInput:
		hint := &Hint{Kind: HintNotEnoughInput}
		if len(c.Args) == 2 {
			hint.Available = bigArg(c.Args[0])
			hint.Needed = bigArg(c.Args[1])
		}
		c.Hint = hint
	case ErrNameSlippage:
		hint := &Hint{Kind: HintSlippage}
		if len(c.Args) == 3 {
			hint.Observed = bigArg(c.Args[0])
			hint.Min = bigArg(c.Args[1])
			hint.Max = bigArg(c.Args[2])
		}
		c.Hint = hint
	}
	return c
}

func bigArg(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok && b != nil {
		return new(big.Int).Set(b)
	}
	return nil
}
