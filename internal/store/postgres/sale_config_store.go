package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refundlabs/saletracker/internal/domain"
)

// SaleConfigStore implements domain.SaleConfigStore using PostgreSQL.
type SaleConfigStore struct {
	pool *pgxpool.Pool
}

// NewSaleConfigStore creates a SaleConfigStore backed by the given pool.
func NewSaleConfigStore(pool *pgxpool.Pool) *SaleConfigStore {
	return &SaleConfigStore{pool: pool}
}

// Insert records a sale config. Replayed event ids are ignored.
func (s *SaleConfigStore) Insert(ctx context.Context, c domain.SaleConfig) error {
	const query = `
		INSERT INTO sale_configs (
			id, token, sale_amount, purchase_price,
			sale_start_block, sale_end_block, block_number, log_index, tx_hash
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.Token, bigString(c.SaleAmount), bigString(c.PurchasePrice),
		int64(c.SaleStartBlock), int64(c.SaleEndBlock), int64(c.BlockNumber),
		int64(c.LogIndex), c.TxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert sale config %s: %w", c.ID, err)
	}
	return nil
}

const saleConfigCols = `id, token, sale_amount::text, purchase_price::text,
	sale_start_block, sale_end_block, block_number, log_index, tx_hash`

func scanSaleConfig(row pgx.Row) (domain.SaleConfig, error) {
	var (
		c                      domain.SaleConfig
		amount, price          string
		start, end, block, idx int64
	)
	err := row.Scan(
		&c.ID, &c.Token, &amount, &price,
		&start, &end, &block, &idx, &c.TxHash,
	)
	if err != nil {
		return domain.SaleConfig{}, err
	}
	if c.SaleAmount, err = parseBig(amount); err != nil {
		return domain.SaleConfig{}, err
	}
	if c.PurchasePrice, err = parseBig(price); err != nil {
		return domain.SaleConfig{}, err
	}
	c.SaleStartBlock = uint64(start)
	c.SaleEndBlock = uint64(end)
	c.BlockNumber = uint64(block)
	c.LogIndex = uint64(idx)
	return c, nil
}

// CurrentByToken returns the latest config for a token. Ties within a block
// break on the log index.
func (s *SaleConfigStore) CurrentByToken(ctx context.Context, token string) (domain.SaleConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+saleConfigCols+` FROM sale_configs
		 WHERE token = $1
		 ORDER BY block_number DESC, log_index DESC
		 LIMIT 1`, token)
	c, err := scanSaleConfig(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SaleConfig{}, domain.ErrNotFound
		}
		return domain.SaleConfig{}, fmt.Errorf("postgres: current sale config %s: %w", token, err)
	}
	return c, nil
}

// ListByToken returns all configs for a token, oldest first.
func (s *SaleConfigStore) ListByToken(ctx context.Context, token string) ([]domain.SaleConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+saleConfigCols+` FROM sale_configs
		 WHERE token = $1
		 ORDER BY block_number ASC, log_index ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sale configs %s: %w", token, err)
	}
	defer rows.Close()

	var out []domain.SaleConfig
	for rows.Next() {
		c, err := scanSaleConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sale config: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list sale configs rows: %w", err)
	}
	return out, nil
}

// TokensWithSales returns the distinct token addresses holding at least one
// sale config.
func (s *SaleConfigStore) TokensWithSales(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT token FROM sale_configs ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("postgres: tokens with sales: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		out = append(out, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: tokens with sales rows: %w", err)
	}
	return out, nil
}
