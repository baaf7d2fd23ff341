// Package chain wraps a go-ethereum RPC client with the contract surface the
// tracker needs: factory/sale event logs and the sale contract's view
// functions.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// factoryABIJSON covers the single factory event the tracker consumes.
const factoryABIJSON = `[
  {
    "type": "event",
    "name": "RefundableTokenDeployed",
    "inputs": [
      {"name": "token", "type": "address", "indexed": true},
      {"name": "deployer", "type": "address", "indexed": true},
      {"name": "beneficiary", "type": "address", "indexed": true},
      {"name": "name", "type": "string", "indexed": false},
      {"name": "symbol", "type": "string", "indexed": false},
      {"name": "maxSupply", "type": "uint256", "indexed": false}
    ]
  }
]`

// saleABIJSON covers the sale lifecycle events plus the view functions used
// by the authoritative-balance aggregation.
const saleABIJSON = `[
  {
    "type": "event",
    "name": "SaleCreated",
    "inputs": [
      {"name": "saleAmount", "type": "uint256", "indexed": false},
      {"name": "purchasePrice", "type": "uint256", "indexed": false},
      {"name": "saleStartBlock", "type": "uint256", "indexed": false},
      {"name": "saleEndBlock", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "Purchased",
    "inputs": [
      {"name": "buyer", "type": "address", "indexed": true},
      {"name": "tokensPurchased", "type": "uint256", "indexed": false},
      {"name": "fundingAmountSpent", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "Refunded",
    "inputs": [
      {"name": "refunder", "type": "address", "indexed": true},
      {"name": "tokenAmount", "type": "uint256", "indexed": false},
      {"name": "fundingTokenAmount", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "function",
    "name": "remainingTokensForSale",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "fundingTokensHeld",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "totalFundsClaimed",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "FUNDING_TOKEN",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "address"}]
  }
]`

// erc20ABIJSON covers the metadata reads on the funding token.
const erc20ABIJSON = `[
  {
    "type": "function",
    "name": "decimals",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint8"}]
  },
  {
    "type": "function",
    "name": "symbol",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "string"}]
  }
]`

var (
	// FactoryABI and SaleABI are parsed once at package init; the JSON above
	// is a compile-time constant, so a parse failure is a programming error.
	FactoryABI = mustParseABI(factoryABIJSON)
	SaleABI    = mustParseABI(saleABIJSON)
	ERC20ABI   = mustParseABI(erc20ABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
