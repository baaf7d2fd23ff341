package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// DeploymentStore persists TokenDeployment rows. Inserts are append-only and
// idempotent on the event id: re-inserting an existing id is a no-op, which
// makes at-least-once delivery from the event source safe to replay.
type DeploymentStore interface {
	Insert(ctx context.Context, d TokenDeployment) error
	GetByToken(ctx context.Context, token string) (TokenDeployment, error)
	// List returns deployments ordered by block number descending.
	List(ctx context.Context, opts ListOpts) ([]TokenDeployment, error)
	Count(ctx context.Context) (int64, error)
}

// SaleConfigStore persists SaleConfig rows with the same append-only,
// idempotent insert semantics as DeploymentStore.
type SaleConfigStore interface {
	Insert(ctx context.Context, c SaleConfig) error
	// CurrentByToken returns the most recent config for a token by block
	// number descending, or ErrNotFound when the token has no sale.
	CurrentByToken(ctx context.Context, token string) (SaleConfig, error)
	// ListByToken returns every config for a token in chain order, oldest
	// first.
	ListByToken(ctx context.Context, token string) ([]SaleConfig, error)
	// TokensWithSales returns the distinct set of token addresses that have
	// at least one config, sorted by address for deterministic iteration.
	TokensWithSales(ctx context.Context) ([]string, error)
}

// ActivityStore persists SaleActivity rows, append-only and idempotent on the
// event id.
type ActivityStore interface {
	Insert(ctx context.Context, a SaleActivity) error
	// ListByToken returns activity for a token in chain order (ascending
	// block number). A zero ListOpts returns the full set.
	ListByToken(ctx context.Context, token string, opts ListOpts) ([]SaleActivity, error)
	List(ctx context.Context, opts ListOpts) ([]SaleActivity, error)
}

// CheckpointStore tracks the highest fully projected block so the log source
// can resume after a restart. The boolean distinguishes "no checkpoint yet"
// from a checkpoint at block zero.
type CheckpointStore interface {
	Get(ctx context.Context) (block uint64, ok bool, err error)
	Set(ctx context.Context, block uint64) error
}
