package domain

import "math/big"

// ActivityKind distinguishes the two sale activity event types.
type ActivityKind string

const (
	ActivityPurchase ActivityKind = "purchase"
	ActivityRefund   ActivityKind = "refund"
)

// SaleActivity records one Purchased or Refunded event. Rows are append-only;
// aggregation always folds the full set for a token rather than a snapshot.
type SaleActivity struct {
	ID            string // event id, idempotency key
	Token         string // lowercase hex
	Kind          ActivityKind
	Account       string // buyer or refunder, lowercase hex
	TokenAmount   *big.Int // tokens purchased or tokens returned
	FundingAmount *big.Int // funding tokens spent or refunded
	BlockNumber   uint64
	LogIndex      uint64
	TxHash        string
}
