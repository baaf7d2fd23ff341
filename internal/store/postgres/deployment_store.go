package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refundlabs/saletracker/internal/domain"
)

// DeploymentStore implements domain.DeploymentStore using PostgreSQL.
type DeploymentStore struct {
	pool *pgxpool.Pool
}

// NewDeploymentStore creates a DeploymentStore backed by the given pool.
func NewDeploymentStore(pool *pgxpool.Pool) *DeploymentStore {
	return &DeploymentStore{pool: pool}
}

// Insert records a token deployment. Conflicting rows (replayed event ids)
// are ignored, which makes projection idempotent.
func (s *DeploymentStore) Insert(ctx context.Context, d domain.TokenDeployment) error {
	const query = `
		INSERT INTO token_deployments (
			id, token, deployer, beneficiary, name, symbol,
			max_supply, block_number, log_index, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
		ON CONFLICT DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Token, d.Deployer, d.Beneficiary, d.Name, d.Symbol,
		bigString(d.MaxSupply), int64(d.BlockNumber), int64(d.LogIndex), d.TxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert deployment %s: %w", d.ID, err)
	}
	return nil
}

const deploymentCols = `id, token, deployer, beneficiary, name, symbol,
	max_supply::text, block_number, log_index, tx_hash`

func scanDeployment(row pgx.Row) (domain.TokenDeployment, error) {
	var (
		d          domain.TokenDeployment
		maxSupply  string
		block, idx int64
	)
	err := row.Scan(
		&d.ID, &d.Token, &d.Deployer, &d.Beneficiary, &d.Name, &d.Symbol,
		&maxSupply, &block, &idx, &d.TxHash,
	)
	if err != nil {
		return domain.TokenDeployment{}, err
	}
	d.MaxSupply, err = parseBig(maxSupply)
	if err != nil {
		return domain.TokenDeployment{}, err
	}
	d.BlockNumber = uint64(block)
	d.LogIndex = uint64(idx)
	return d, nil
}

// GetByToken retrieves the deployment for a token address.
func (s *DeploymentStore) GetByToken(ctx context.Context, token string) (domain.TokenDeployment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deploymentCols+` FROM token_deployments WHERE token = $1`, token)
	d, err := scanDeployment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.TokenDeployment{}, domain.ErrNotFound
		}
		return domain.TokenDeployment{}, fmt.Errorf("postgres: get deployment %s: %w", token, err)
	}
	return d, nil
}

// List returns deployments ordered newest first.
func (s *DeploymentStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TokenDeployment, error) {
	query := `SELECT ` + deploymentCols + ` FROM token_deployments ORDER BY block_number DESC, log_index DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list deployments: %w", err)
	}
	defer rows.Close()

	var out []domain.TokenDeployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan deployment: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list deployments rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of deployments.
func (s *DeploymentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM token_deployments").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count deployments: %w", err)
	}
	return count, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse numeric %q", s)
	}
	return v, nil
}
