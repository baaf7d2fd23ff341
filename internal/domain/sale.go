package domain

import "math/big"

// SaleConfig records one SaleCreated event. A token may accumulate several
// configs over its lifetime; the "current" one is always selected at read
// time by descending block number, never by overwriting older rows.
type SaleConfig struct {
	ID             string // event id, idempotency key
	Token          string // sale contract address (= token address), lowercase hex
	SaleAmount     *big.Int
	PurchasePrice  *big.Int // funding-token smallest units per whole token
	SaleStartBlock uint64
	SaleEndBlock   uint64
	BlockNumber    uint64
	// LogIndex orders configs within a block. The event id string also
	// encodes it, but not in a form that sorts numerically.
	LogIndex uint64
	TxHash   string
}

// SaleSummary is the activity-fold aggregation for one token's current sale.
// Amounts are decimal strings at native precision; nullable display values
// are pointers so callers can distinguish "zero" from "not applicable".
type SaleSummary struct {
	Token          string `json:"token"`
	SaleAmount     string `json:"saleAmount"`
	PurchasePrice  string `json:"purchasePrice"`
	SaleStartBlock uint64 `json:"saleStartBlock"`
	SaleEndBlock   uint64 `json:"saleEndBlock"`

	TokensSold      string `json:"tokensSold"`
	FundingRaised   string `json:"fundingRaised"`
	RemainingTokens string `json:"remainingTokens"`

	// PercentTokensRemaining is rounded to two decimals; nil when the sale
	// amount is zero.
	PercentTokensRemaining *float64 `json:"percentTokensRemaining"`

	BlocksRemaining uint64 `json:"blocksRemaining"`
	// ClosingInDays is nil when no end block is configured.
	ClosingInDays *int64 `json:"closingInDays"`

	// LatestBlock is the chain head observed when the summary was computed;
	// BlockTimeSeconds is the block interval the day estimate assumed.
	LatestBlock      uint64 `json:"latestBlock"`
	BlockTimeSeconds uint64 `json:"blockTimeSeconds"`

	// Pre-clamp refund excess, exposed for diagnostics. Non-zero values mean
	// recorded refund volume exceeded recorded purchase volume, e.g. during
	// a backfill.
	TokensRefundExcess  string `json:"tokensRefundExcess"`
	FundingRefundExcess string `json:"fundingRefundExcess"`
}

// SalesStatsRow is the authoritative-balance aggregation for one deployed
// token, combining live contract reads with the refund total folded from the
// event log. The contract exposes no cumulative refund view, so Refunded is
// always event-derived.
type SalesStatsRow struct {
	Token  string `json:"token"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	RemainingTokensForSale string `json:"remainingTokensForSale"`
	Raised                 string `json:"raised"` // held + claimed + refunded
	Refunded               string `json:"refunded"`
	Claimed                string `json:"claimed"`

	FundingTokenSymbol   string `json:"fundingTokenSymbol"`
	FundingTokenDecimals uint8  `json:"fundingTokenDecimals"`
	// FundingTokenResolved is false when the funding-token metadata reads
	// failed and the symbol/decimals above are placeholders.
	FundingTokenResolved bool `json:"fundingTokenResolved"`

	// IndexedToBlock is the projector checkpoint at aggregation time; when it
	// trails LatestBlock the event-derived Refunded figure may be stale.
	IndexedToBlock uint64 `json:"indexedToBlock"`
	LatestBlock    uint64 `json:"latestBlock"`
}
