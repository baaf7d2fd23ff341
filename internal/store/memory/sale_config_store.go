package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/refundlabs/saletracker/internal/domain"
)

// SaleConfigStore is an in-memory domain.SaleConfigStore.
type SaleConfigStore struct {
	mu   sync.RWMutex
	rows map[string]domain.SaleConfig // keyed by event id
}

// NewSaleConfigStore creates an empty in-memory sale config store.
func NewSaleConfigStore() *SaleConfigStore {
	return &SaleConfigStore{rows: make(map[string]domain.SaleConfig)}
}

// Insert adds a sale config. Re-inserting an existing event id is a no-op.
func (s *SaleConfigStore) Insert(_ context.Context, c domain.SaleConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[c.ID]; exists {
		return nil
	}
	s.rows[c.ID] = c
	return nil
}

// CurrentByToken returns the latest config for a token: highest block
// number, then highest log index to break intra-block ties.
func (s *SaleConfigStore) CurrentByToken(_ context.Context, token string) (domain.SaleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  domain.SaleConfig
		found bool
	)
	for _, c := range s.rows {
		if c.Token != token {
			continue
		}
		if !found || newerConfig(c, best) {
			best = c
			found = true
		}
	}
	if !found {
		return domain.SaleConfig{}, domain.ErrNotFound
	}
	return best, nil
}

// ListByToken returns all configs for a token ordered oldest first.
func (s *SaleConfigStore) ListByToken(_ context.Context, token string) ([]domain.SaleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SaleConfig
	for _, c := range s.rows {
		if c.Token == token {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerConfig(out[j], out[i])
	})
	return out, nil
}

// TokensWithSales returns the distinct token addresses that have at least
// one sale config, sorted for deterministic iteration.
func (s *SaleConfigStore) TokensWithSales(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range s.rows {
		seen[c.Token] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for token := range seen {
		out = append(out, token)
	}
	sort.Strings(out)
	return out, nil
}

func newerConfig(a, b domain.SaleConfig) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber > b.BlockNumber
	}
	// Event ids encode the log index but do not sort numerically as
	// strings, so the tie-break must use the numeric field.
	return a.LogIndex > b.LogIndex
}
