package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAddresses converts string addresses into common.Address, skipping blanks.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		addr, err := ParseAddress(input)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseBytes6 decodes a 6-byte series or asset identifier.
func ParseBytes6(input string) ([6]byte, error) {
	var out [6]byte
	data, err := hexutil.Decode(strings.TrimSpace(input))
	if err != nil {
		return out, fmt.Errorf("invalid bytes6 id %q: %w", input, err)
	}
	if len(data) != len(out) {
		return out, fmt.Errorf("invalid bytes6 id length: %q", input)
	}
	copy(out[:], data)
	return out, nil
}
