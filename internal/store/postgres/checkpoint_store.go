package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// checkpointName identifies the single indexer cursor row.
const checkpointName = "indexer"

// CheckpointStore implements domain.CheckpointStore using PostgreSQL.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a CheckpointStore backed by the given pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Get returns the last indexed block and whether a checkpoint exists.
func (s *CheckpointStore) Get(ctx context.Context) (uint64, bool, error) {
	var block int64
	err := s.pool.QueryRow(ctx,
		`SELECT block_number FROM indexer_checkpoint WHERE name = $1`,
		checkpointName,
	).Scan(&block)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("postgres: get checkpoint: %w", err)
	}
	return uint64(block), true, nil
}

// Set records the last indexed block.
func (s *CheckpointStore) Set(ctx context.Context, block uint64) error {
	const query = `
		INSERT INTO indexer_checkpoint (name, block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			updated_at   = NOW()`

	if _, err := s.pool.Exec(ctx, query, checkpointName, int64(block)); err != nil {
		return fmt.Errorf("postgres: set checkpoint: %w", err)
	}
	return nil
}
