// Package memory provides in-memory implementations of the domain store
// interfaces. They back the test suite and mirror the postgres stores'
// semantics exactly: append-only inserts, idempotent on event id, read-time
// ordering.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/refundlabs/saletracker/internal/domain"
)

// DeploymentStore is an in-memory domain.DeploymentStore.
type DeploymentStore struct {
	mu   sync.RWMutex
	rows map[string]domain.TokenDeployment // keyed by event id
}

// NewDeploymentStore creates an empty in-memory deployment store.
func NewDeploymentStore() *DeploymentStore {
	return &DeploymentStore{rows: make(map[string]domain.TokenDeployment)}
}

// Insert adds a deployment. Re-inserting an existing event id is a no-op.
func (s *DeploymentStore) Insert(_ context.Context, d domain.TokenDeployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[d.ID]; exists {
		return nil
	}
	s.rows[d.ID] = d
	return nil
}

// GetByToken returns the deployment for a token address.
func (s *DeploymentStore) GetByToken(_ context.Context, token string) (domain.TokenDeployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.rows {
		if d.Token == token {
			return d, nil
		}
	}
	return domain.TokenDeployment{}, domain.ErrNotFound
}

// List returns deployments ordered by block number descending. A Limit of
// zero or less means no limit.
func (s *DeploymentStore) List(_ context.Context, opts domain.ListOpts) ([]domain.TokenDeployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TokenDeployment, 0, len(s.rows))
	for _, d := range s.rows {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].LogIndex > out[j].LogIndex
	})

	return paginate(out, opts), nil
}

// Count returns the number of stored deployments.
func (s *DeploymentStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows)), nil
}

// paginate applies offset/limit to a sorted slice.
func paginate[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(rows) {
		rows = rows[:opts.Limit]
	}
	return rows
}
