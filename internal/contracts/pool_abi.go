package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolABIJSON = `[
  {
    "inputs": [],
    "name": "getCache",
    "outputs": [
      {"internalType": "uint104", "name": "baseCached", "type": "uint104"},
      {"internalType": "uint104", "name": "fyTokenCached", "type": "uint104"},
      {"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"},
      {"internalType": "uint16", "name": "g1Fee", "type": "uint16"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getBaseBalance",
    "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getFYTokenBalance",
    "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "fyToken",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "maturity",
    "outputs": [{"internalType": "uint32", "name": "", "type": "uint32"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint128", "name": "fyTokenIn", "type": "uint128"}],
    "name": "sellFYTokenPreview",
    "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "to", "type": "address"},
      {"internalType": "uint128", "name": "min", "type": "uint128"}
    ],
    "name": "sellFYToken",
    "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint32", "name": "maturity", "type": "uint32"},
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "int256", "name": "base", "type": "int256"},
      {"indexed": false, "internalType": "int256", "name": "fyTokens", "type": "int256"}
    ],
    "name": "Trade",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "available", "type": "uint256"},
      {"internalType": "uint256", "name": "needed", "type": "uint256"}
    ],
    "name": "NotEnoughInputAvailable",
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
  },
  {
    "inputs": [
      {"internalType": "uint128", "name": "newFYTokenBalance", "type": "uint128"},
      {"internalType": "uint128", "name": "newBaseBalance", "type": "uint128"}
    ],
    "name": "NegativeInterestRatesNotAllowed",
    "type": "error"
  },
  {
    "inputs": [],
    "name": "AfterMaturity",
    "type": "error"
  }
]`

var (
	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error
)

// PoolABI returns the parsed fixed-rate pool ABI.
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}
