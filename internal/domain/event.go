package domain

import "math/big"

// ContractKind identifies which ABI a raw log was emitted under.
type ContractKind string

const (
	ContractFactory ContractKind = "factory"
	ContractSale    ContractKind = "sale"
)

// Event is a normalized chain event. The concrete types below form a closed
// set; the projector switches over them and rejects anything else.
type Event interface {
	// EventID returns the stream-unique id of the emitting log, used as the
	// idempotency key for projection.
	EventID() string
	// TokenAddress returns the lowercase token contract address the event
	// belongs to.
	TokenAddress() string
	// Block returns the emitting log's block number.
	Block() uint64
}

// EventMeta carries the provenance fields shared by every normalized event.
type EventMeta struct {
	ID          string
	Token       string
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
}

func (m EventMeta) EventID() string      { return m.ID }
func (m EventMeta) TokenAddress() string { return m.Token }
func (m EventMeta) Block() uint64        { return m.BlockNumber }

// TokenDeployed is the factory's RefundableTokenDeployed event.
type TokenDeployed struct {
	EventMeta
	Deployer    string
	Beneficiary string
	Name        string
	Symbol      string
	MaxSupply   *big.Int
}

// SaleCreated is the sale contract's SaleCreated event. The token address is
// the log source address: a sale is a property of the token contract.
type SaleCreated struct {
	EventMeta
	SaleAmount     *big.Int
	PurchasePrice  *big.Int
	SaleStartBlock uint64
	SaleEndBlock   uint64
}

// Purchased is the sale contract's Purchased event.
type Purchased struct {
	EventMeta
	Buyer              string // lowercase hex
	TokensPurchased    *big.Int
	FundingAmountSpent *big.Int
}

// Refunded is the sale contract's Refunded event.
type Refunded struct {
	EventMeta
	Refunder           string // lowercase hex
	TokenAmount        *big.Int
	FundingTokenAmount *big.Int
}
