package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"fyBorrow/internal/chain"
)

// PositionID is the helper's 12-byte position handle.
type PositionID [12]byte

// Hex returns the 0x-prefixed id.
func (id PositionID) Hex() string {
	return fmt.Sprintf("0x%x", id[:])
}

func (id PositionID) IsZero() bool {
	return id == PositionID{}
}

// PositionBuilt is the decoded helper event emitted by build.
type PositionBuilt struct {
	PositionID  PositionID
	Owner       common.Address
	SeriesID    [6]byte
	IlkID       [6]byte
	BlockNumber uint64
	TxHash      common.Hash
}

func packCall(parsed abi.ABI, to common.Address, label, method string, args ...interface{}) (chain.Call, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return chain.Call{}, fmt.Errorf("pack %s: %w", method, err)
	}
	return chain.Call{To: to, Data: data, Label: label + "." + method}, nil
}

// SellFYTokenPreviewCall asks the pool how much base fyTokenIn would buy.
func SellFYTokenPreviewCall(pool common.Address, fyTokenIn *big.Int) (chain.Call, error) {
	parsed, err := PoolABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, pool, "pool", "sellFYTokenPreview", fyTokenIn)
}

// UnpackSellFYTokenPreview decodes the preview output.
func UnpackSellFYTokenPreview(data []byte) (*big.Int, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("sellFYTokenPreview", data)
	if err != nil {
		return nil, fmt.Errorf("unpack sellFYTokenPreview: %w", err)
	}
	return asBigInt(values[0])
}

// SellFYTokenCall sells the fyToken already held by the pool, sending base to `to`.
func SellFYTokenCall(pool, to common.Address, minBaseOut *big.Int) (chain.Call, error) {
	parsed, err := PoolABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, pool, "pool", "sellFYToken", to, minBaseOut)
}

// BuildCall opens a position for (series, ilk).
func BuildCall(helper common.Address, seriesID, ilkID [6]byte, salt uint8) (chain.Call, error) {
	parsed, err := HelperABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, helper, "helper", "build", seriesID, ilkID, salt)
}

// PourCall adds collateral and mints debt on a position, sending minted fyToken to `to`.
func PourCall(helper common.Address, id PositionID, to common.Address, collateral, debt *big.Int) (chain.Call, error) {
	parsed, err := HelperABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, helper, "helper", "pour", [12]byte(id), to, collateral, debt)
}

// JoinCall resolves the join contract that custodies an asset.
func JoinCall(helper common.Address, assetID [6]byte) (chain.Call, error) {
	parsed, err := HelperABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, helper, "helper", "joins", assetID)
}

// ApproveCall grants spender an ERC20 allowance.
func ApproveCall(token, spender common.Address, amount *big.Int) (chain.Call, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, token, "erc20", "approve", spender, amount)
}

// TransferCall moves amount of token from the signer to `to`.
func TransferCall(token, to common.Address, amount *big.Int) (chain.Call, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return chain.Call{}, err
	}
	return packCall(parsed, token, "erc20", "transfer", to, amount)
}

// PositionBuiltFilter selects PositionBuilt events for owner.
func PositionBuiltFilter(helper, owner common.Address) (chain.LogFilter, error) {
	parsed, err := HelperABI()
	if err != nil {
		return chain.LogFilter{}, err
	}
	return chain.LogFilter{
		Addresses: []common.Address{helper},
		Topics: [][]common.Hash{
			{parsed.Events["PositionBuilt"].ID},
			nil,
			{common.BytesToHash(owner.Bytes())},
		},
	}, nil
}

// DecodePositionBuilt decodes a PositionBuilt log.
func DecodePositionBuilt(log types.Log) (PositionBuilt, error) {
	parsed, err := HelperABI()
	if err != nil {
		return PositionBuilt{}, err
	}
	event := parsed.Events["PositionBuilt"]
	if len(log.Topics) != 4 || log.Topics[0] != event.ID {
		return PositionBuilt{}, fmt.Errorf("not a PositionBuilt log")
	}

	indexed := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return PositionBuilt{}, fmt.Errorf("parse topics: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return PositionBuilt{}, fmt.Errorf("unpack PositionBuilt: %w", err)
	}

	out := PositionBuilt{BlockNumber: log.BlockNumber, TxHash: log.TxHash}
	id, ok := indexed["positionId"].([12]byte)
	if !ok {
		return PositionBuilt{}, fmt.Errorf("unexpected positionId type %T", indexed["positionId"])
	}
	out.PositionID = PositionID(id)
	if out.Owner, err = asAddress(indexed["owner"]); err != nil {
		return PositionBuilt{}, fmt.Errorf("owner: %w", err)
	}
	if out.SeriesID, ok = indexed["seriesId"].([6]byte); !ok {
		return PositionBuilt{}, fmt.Errorf("unexpected seriesId type %T", indexed["seriesId"])
	}
	if out.IlkID, ok = values[0].([6]byte); !ok {
		return PositionBuilt{}, fmt.Errorf("unexpected ilkId type %T", values[0])
	}
	return out, nil
}

// FindPositionBuilt returns the last PositionBuilt log matching owner, series and ilk.
func FindPositionBuilt(logs []types.Log, owner common.Address, seriesID, ilkID [6]byte) (PositionBuilt, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		built, err := DecodePositionBuilt(logs[i])
		if err != nil {
			continue
		}
		if built.Owner == owner && built.SeriesID == seriesID && built.IlkID == ilkID {
			return built, true
		}
	}
	return PositionBuilt{}, false
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	out := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			out = append(out, arg)
		}
	}
	return out
}
