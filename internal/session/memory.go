package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tiendaverde/catalogo/internal/domain"
)

// MemoryStore keeps carts in process memory. It backs single-instance
// deployments without Redis and the test suite. Carts are stored as their
// JSON encoding so that Get goes through the same decode path as the Redis
// store, legacy entry shapes included.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.RLock()
	data, ok := s.carts[sessionID]
	s.mu.RUnlock()

	if !ok {
		return domain.NewCart(), nil
	}

	cart := domain.NewCart()
	if err := json.Unmarshal(data, cart); err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = make(map[int64]domain.CartEntry)
	}

	return cart, nil
}

func (s *MemoryStore) Put(ctx context.Context, sessionID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.carts[sessionID] = data
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()

	return nil
}

// Seed stores a raw JSON cart payload, bypassing the canonical encoder.
// Tests use it to plant legacy-shaped carts.
func (s *MemoryStore) Seed(sessionID string, data []byte) {
	s.mu.Lock()
	s.carts[sessionID] = data
	s.mu.Unlock()
}
