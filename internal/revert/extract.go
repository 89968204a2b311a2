package revert

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const maxUnwrapDepth = 8

// extraction is what could be pulled out of an error tree.
type extraction struct {
	data     []byte
	messages []string
}

// extract walks the error tree breadth-first: the error itself, then its
// wrapped causes (single or joined). The first node carrying revert data wins;
// messages of every visited node are kept for the text fallback.
func extract(err error) extraction {
	var out extraction
	if err == nil {
		return out
	}

	level := []error{err}
	for depth := 0; depth < maxUnwrapDepth && len(level) > 0; depth++ {
		var next []error
		for _, node := range level {
			if node == nil {
				continue
			}
			if msg := strings.TrimSpace(node.Error()); msg != "" {
				out.messages = append(out.messages, msg)
			}
			if out.data == nil {
				if data, ok := nodeData(node); ok {
					out.data = data
				}
			}
			next = append(next, children(node)...)
		}
		level = next
	}
	return out
}

func nodeData(err error) ([]byte, bool) {
	dataErr, ok := err.(rpc.DataError)
	if !ok {
		return nil, false
	}
	return decodeData(dataErr.ErrorData(), 0)
}

func children(err error) []error {
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		return e.Unwrap()
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			return []error{inner}
		}
	}
	return nil
}

// decodeData accepts the shapes transports use for revert data: hex strings,
// raw bytes, or an object nesting either under "data".
func decodeData(v interface{}, depth int) ([]byte, bool) {
	if depth > maxUnwrapDepth {
		return nil, false
	}
	var data []byte
	switch typed := v.(type) {
	case string:
		decoded, err := hexutil.Decode(strings.TrimSpace(typed))
		if err != nil {
			return nil, false
		}
		data = decoded
	case []byte:
		data = typed
	case hexutil.Bytes:
		data = typed
	case map[string]interface{}:
		return decodeData(typed["data"], depth+1)
	case error:
		var dataErr rpc.DataError
		if errors.As(typed, &dataErr) {
			return decodeData(dataErr.ErrorData(), depth+1)
		}
		return nil, false
	default:
		return nil, false
	}
	if len(data) < 4 {
		return nil, false
	}
	return data, true
}
