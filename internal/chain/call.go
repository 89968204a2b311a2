package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Call is a contract invocation with already-packed calldata.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	// Label names the operation in logs, e.g. "pool.sellFYTokenPreview".
	Label string
}

// LogFilter selects event logs by emitting contract and topics.
type LogFilter struct {
	Addresses []common.Address
	Topics    [][]common.Hash
}

// RevertError is returned by Submit when a mined transaction failed.
// Data holds the revert payload when the replayed call produced one.
type RevertError struct {
	TxHash      common.Hash
	BlockNumber uint64
	Data        []byte
	Err         error
}

func (e *RevertError) Error() string {
	msg := fmt.Sprintf("transaction %s reverted in block %d", e.TxHash.Hex(), e.BlockNumber)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

// ErrorData exposes the payload the same way go-ethereum's rpc errors do.
func (e *RevertError) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return hexutil.Encode(e.Data)
}

// revertData pulls the revert payload out of an eth_call error. Nodes return
// it as a hex string; in-process backends may hand over raw bytes.
func revertData(err error) []byte {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		data, err := hexutil.Decode(strings.TrimSpace(v))
		if err != nil || len(data) == 0 {
			return nil
		}
		return data
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return append([]byte(nil), v...)
	case hexutil.Bytes:
		if len(v) == 0 {
			return nil
		}
		return append([]byte(nil), v...)
	default:
		return nil
	}
}
