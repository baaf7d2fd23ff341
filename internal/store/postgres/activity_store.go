package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refundlabs/saletracker/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates an ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Insert records a purchase or refund. Replayed event ids are ignored.
func (s *ActivityStore) Insert(ctx context.Context, a domain.SaleActivity) error {
	const query = `
		INSERT INTO sale_activity (
			id, token, kind, account,
			token_amount, funding_amount, block_number, log_index, tx_hash
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Token, string(a.Kind), a.Account,
		bigString(a.TokenAmount), bigString(a.FundingAmount),
		int64(a.BlockNumber), int64(a.LogIndex), a.TxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert activity %s: %w", a.ID, err)
	}
	return nil
}

const activityCols = `id, token, kind, account,
	token_amount::text, funding_amount::text, block_number, log_index, tx_hash`

func scanActivity(row pgx.Row) (domain.SaleActivity, error) {
	var (
		a               domain.SaleActivity
		kind            string
		tokens, funding string
		block, idx      int64
	)
	err := row.Scan(
		&a.ID, &a.Token, &kind, &a.Account,
		&tokens, &funding, &block, &idx, &a.TxHash,
	)
	if err != nil {
		return domain.SaleActivity{}, err
	}
	if a.TokenAmount, err = parseBig(tokens); err != nil {
		return domain.SaleActivity{}, err
	}
	if a.FundingAmount, err = parseBig(funding); err != nil {
		return domain.SaleActivity{}, err
	}
	a.Kind = domain.ActivityKind(kind)
	a.BlockNumber = uint64(block)
	a.LogIndex = uint64(idx)
	return a, nil
}

func (s *ActivityStore) list(ctx context.Context, where string, whereArgs []any, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	query := `SELECT ` + activityCols + ` FROM sale_activity` + where +
		` ORDER BY block_number ASC, log_index ASC`
	args := whereArgs
	argIdx := len(args) + 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.SaleActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return out, nil
}

// ListByToken returns activity for a token in chain order, oldest first.
func (s *ActivityStore) ListByToken(ctx context.Context, token string, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	return s.list(ctx, " WHERE token = $1", []any{token}, opts)
}

// List returns all activity in chain order, oldest first.
func (s *ActivityStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	return s.list(ctx, "", nil, opts)
}
