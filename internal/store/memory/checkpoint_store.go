package memory

import (
	"context"
	"sync"
)

// CheckpointStore is an in-memory domain.CheckpointStore.
type CheckpointStore struct {
	mu    sync.RWMutex
	block uint64
	set   bool
}

// NewCheckpointStore creates an in-memory checkpoint store with no
// checkpoint recorded.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

// Get returns the last indexed block and whether a checkpoint exists.
func (s *CheckpointStore) Get(_ context.Context) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block, s.set, nil
}

// Set records the last indexed block.
func (s *CheckpointStore) Set(_ context.Context, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.block = block
	s.set = true
	return nil
}
