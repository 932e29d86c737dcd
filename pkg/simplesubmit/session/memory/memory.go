package memory

import (
	"context"
	"sync"

	"github.com/tendant/simple-submit/pkg/simplesubmit/session"
)

// Store is an in-memory session.Store. Contents are lost on restart.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty store
func New() *Store {
	return &Store{values: make(map[string]string)}
}

var _ session.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len returns the number of stored keys
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
