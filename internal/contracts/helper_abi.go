package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The helper builds positions and moves collateral and debt in and out of them.
const helperABIJSON = `[
  {
    "inputs": [
      {"internalType": "bytes6", "name": "seriesId", "type": "bytes6"},
      {"internalType": "bytes6", "name": "ilkId", "type": "bytes6"},
      {"internalType": "uint8", "name": "salt", "type": "uint8"}
    ],
    "name": "build",
    "outputs": [{"internalType": "bytes12", "name": "positionId", "type": "bytes12"}],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "bytes12", "name": "positionId", "type": "bytes12"},
      {"internalType": "address", "name": "to", "type": "address"},
      {"internalType": "int128", "name": "collateralDelta", "type": "int128"},
      {"internalType": "int128", "name": "debtDelta", "type": "int128"}
    ],
    "name": "pour",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes6", "name": "assetId", "type": "bytes6"}],
    "name": "joins",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes12", "name": "positionId", "type": "bytes12"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "bytes6", "name": "seriesId", "type": "bytes6"},
      {"indexed": false, "internalType": "bytes6", "name": "ilkId", "type": "bytes6"}
    ],
    "name": "PositionBuilt",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "bytes12", "name": "positionId", "type": "bytes12"}],
    "name": "UnknownPosition",
    "type": "error"
  },
  {
    "inputs": [{"internalType": "address", "name": "caller", "type": "address"}],
    "name": "Unauthorized",
    "type": "error"
  },
  {
    "inputs": [{"internalType": "bytes12", "name": "positionId", "type": "bytes12"}],
    "name": "Undercollateralized",
    "type": "error"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "ratio", "type": "uint256"},
      {"internalType": "uint256", "name": "minRatio", "type": "uint256"},
      {"internalType": "uint256", "name": "maxRatio", "type": "uint256"}
    ],
    "name": "SlippageExceeded",
    "type": "error"
  }
]`

var (
	helperABI     abi.ABI
	helperABIOnce sync.Once
	helperABIErr  error
)

// HelperABI returns the parsed position helper ABI.
func HelperABI() (abi.ABI, error) {
	helperABIOnce.Do(func() {
		helperABI, helperABIErr = abi.JSON(strings.NewReader(helperABIJSON))
	})
	return helperABI, helperABIErr
}
