package storage

import (
	"context"
	"sync"
)

// MemoryTxRunner is the in-memory counterpart of DB's transaction runner,
// used with the in-memory repositories in tests and single-binary setups.
// It serializes transactional units on one mutex; rollback of partial writes
// is not simulated.
type MemoryTxRunner struct {
	mu sync.Mutex
}

// NewMemoryTxRunner creates a runner.
func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{}
}

// InTx runs fn while holding the store-wide lock.
func (m *MemoryTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}
