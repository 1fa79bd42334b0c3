package db

import (
	"context"
	"sync"

	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
)

// MemoryStore keeps the state in process. Update calls are serialized, which gives the
// same single-writer guarantee as the postgres row lock.
type MemoryStore struct {
	mutex sync.Mutex
	state *state.RelayerState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Bootstrap(_ context.Context, seed *state.RelayerState) (uint32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.state == nil {
		m.state = seed.Clone()
		return 0, nil
	}
	next := m.state.Clone()
	from, err := upgrade(next)
	if err != nil {
		return from, err
	}
	m.state = next
	return from, nil
}

func (m *MemoryStore) Update(ctx context.Context, fn func(*state.RelayerState) error) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.state == nil {
		return ErrNotInitialized
	}
	working := m.state.Clone()
	if err := fn(working); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *MemoryStore) View(ctx context.Context, fn func(*state.RelayerState) error) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.state == nil {
		return ErrNotInitialized
	}
	return fn(m.state.Clone())
}

func (m *MemoryStore) Close() error {
	return nil
}
