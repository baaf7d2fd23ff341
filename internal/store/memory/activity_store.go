package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/refundlabs/saletracker/internal/domain"
)

// ActivityStore is an in-memory domain.ActivityStore.
type ActivityStore struct {
	mu   sync.RWMutex
	rows map[string]domain.SaleActivity // keyed by event id
}

// NewActivityStore creates an empty in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{rows: make(map[string]domain.SaleActivity)}
}

// Insert adds an activity row. Re-inserting an existing event id is a no-op.
func (s *ActivityStore) Insert(_ context.Context, a domain.SaleActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[a.ID]; exists {
		return nil
	}
	s.rows[a.ID] = a
	return nil
}

// ListByToken returns activity for a token in chain order, oldest first.
func (s *ActivityStore) ListByToken(_ context.Context, token string, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SaleActivity
	for _, a := range s.rows {
		if a.Token == token {
			out = append(out, a)
		}
	}
	sortActivity(out)
	return paginate(out, opts), nil
}

// List returns all activity in chain order, oldest first.
func (s *ActivityStore) List(_ context.Context, opts domain.ListOpts) ([]domain.SaleActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SaleActivity, 0, len(s.rows))
	for _, a := range s.rows {
		out = append(out, a)
	}
	sortActivity(out)
	return paginate(out, opts), nil
}

func sortActivity(rows []domain.SaleActivity) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BlockNumber != rows[j].BlockNumber {
			return rows[i].BlockNumber < rows[j].BlockNumber
		}
		return rows[i].LogIndex < rows[j].LogIndex
	})
}
