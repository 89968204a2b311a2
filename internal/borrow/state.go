package borrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"fyBorrow/internal/contracts"
	"fyBorrow/internal/quote"
)

// Step is a position in the borrow flow.
type Step string

const (
	StepIdle                  Step = "Idle"
	StepApproving             Step = "Approving"
	StepOpeningPosition       Step = "OpeningPosition"
	StepSupplyingAndBorrowing Step = "SupplyingAndBorrowing"
	StepSwapping              Step = "Swapping"
	StepDone                  Step = "Done"
	StepFailed                Step = "Failed"
)

// Active reports whether a flow in this step still owns the orchestrator.
func (s Step) Active() bool {
	switch s {
	case StepIdle, StepDone, StepFailed, "":
		return false
	default:
		return true
	}
}

// FlowState is the live state of one submission. It is never persisted.
type FlowState struct {
	Step      Step
	LastTxRef string
	LastError string
}

// Params are the user inputs of a borrow, as typed.
type Params struct {
	// CollateralAmount is in whole collateral units, e.g. "1.5".
	CollateralAmount string
	// BorrowAmount is the base amount the user wants to receive.
	BorrowAmount string
}

// Session holds the wallet facts known to the caller. Nil amounts mean unknown.
// The orchestrator updates Allowance after a successful approval.
type Session struct {
	Signer            *common.Address
	ChainID           *big.Int
	CollateralBalance *big.Int
	Allowance         *big.Int
}

// Config binds the orchestrator to one pool, series and collateral.
type Config struct {
	RequiredChainID *big.Int

	Pool            common.Address
	Helper          common.Address
	CollateralToken common.Address
	// FYToken is minted to the owner by pour and sold into Pool.
	FYToken common.Address
	// Spender is the collateral join that pulls tokens during pour.
	Spender common.Address

	SeriesID [6]byte
	IlkID    [6]byte

	BaseDecimals       uint8
	CollateralDecimals uint8
	// SlippageBps reduces the minimum accepted swap output.
	SlippageBps uint16
}

// Result is the terminal outcome of a submission.
type Result struct {
	Submission uint64
	State      FlowState
	PositionID contracts.PositionID
	Quote      quote.Quote
	Collateral *big.Int
	Borrow     *big.Int
	MinBaseOut *big.Int
}
