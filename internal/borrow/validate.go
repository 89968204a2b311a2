package borrow

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type validated struct {
	owner      common.Address
	collateral *big.Int
	borrow     *big.Int
}

func (o *Orchestrator) validate(params Params, session *Session) (validated, error) {
	if session == nil || session.Signer == nil || *session.Signer == (common.Address{}) {
		return validated{}, ErrWalletUnavailable
	}
	if o.cfg.RequiredChainID != nil {
		if session.ChainID == nil || session.ChainID.Cmp(o.cfg.RequiredChainID) != 0 {
			return validated{}, &ValidationError{Field: "network", Message: "wrong network selected, switch to chain " + o.cfg.RequiredChainID.String()}
		}
	}

	collateral, err := ParseAmount(params.CollateralAmount, o.cfg.CollateralDecimals)
	if err != nil {
		return validated{}, &ValidationError{Field: "collateral", Message: err.Error()}
	}
	borrow, err := ParseAmount(params.BorrowAmount, o.cfg.BaseDecimals)
	if err != nil {
		return validated{}, &ValidationError{Field: "borrow", Message: err.Error()}
	}
	if session.CollateralBalance != nil && collateral.Cmp(session.CollateralBalance) > 0 {
		return validated{}, &ValidationError{Field: "collateral", Message: "amount exceeds wallet balance"}
	}

	return validated{owner: *session.Signer, collateral: collateral, borrow: borrow}, nil
}

type amountError string

func (e amountError) Error() string { return string(e) }

// ParseAmount converts a decimal string into the token's smallest unit. The
// amount must be strictly positive and representable at decimals precision.
func ParseAmount(input string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, amountError("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, amountError("not a number")
	}
	if !d.IsPositive() {
		return nil, amountError("must be greater than zero")
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, amountError("too many decimal places")
	}
	return scaled.BigInt(), nil
}

// FormatAmount renders a smallest-unit amount with decimals precision.
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}
