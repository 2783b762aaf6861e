package signature

import (
	"context"
	"fmt"
	"sync"

	"casegate/internal/domain"
	"casegate/internal/syncx"
)

// Store keeps envelope state. Update must serialize concurrent updates of
// the same envelope and persist nothing when fn returns an error.
type Store interface {
	Create(ctx context.Context, env *domain.Envelope) error
	Get(ctx context.Context, envelopeID string) (*domain.Envelope, error)
	Update(ctx context.Context, envelopeID string, fn func(env *domain.Envelope) error) (*domain.Envelope, error)
}

// MemoryStore is an in-process Store guarded by a per-envelope lock.
type MemoryStore struct {
	mu        sync.RWMutex
	envelopes map[string]*domain.Envelope
	locks     *syncx.KeyedMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		envelopes: make(map[string]*domain.Envelope),
		locks:     syncx.NewKeyedMutex(),
	}
}

func (m *MemoryStore) Create(_ context.Context, env *domain.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.envelopes[env.ID]; ok {
		return fmt.Errorf("envelope %s already exists", env.ID)
	}
	m.envelopes[env.ID] = env.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, envelopeID string) (*domain.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.envelopes[envelopeID]
	if !ok {
		return nil, fmt.Errorf("envelope %s: %w", envelopeID, domain.ErrNotFound)
	}
	return env.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, envelopeID string, fn func(env *domain.Envelope) error) (*domain.Envelope, error) {
	unlock := m.locks.Lock(envelopeID)
	defer unlock()

	working, err := m.Get(ctx, envelopeID)
	if err != nil {
		return nil, err
	}
	if err := fn(working); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.envelopes[envelopeID] = working.Clone()
	m.mu.Unlock()
	return working, nil
}
