// Package domain defines the core entities of the token-sale tracker: chain
// events, the three projected entity kinds, derived summaries, and the store
// interfaces that persist them.
package domain

import "math/big"

// TokenDeployment records one factory-emitted token deployment. Rows are
// written exactly once, keyed by the emitting event's id, and never mutated.
type TokenDeployment struct {
	ID          string   // event id, idempotency key
	Token       string   // token contract address, lowercase hex
	Deployer    string   // lowercase hex
	Beneficiary string   // lowercase hex
	Name        string
	Symbol      string
	MaxSupply   *big.Int
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
}
