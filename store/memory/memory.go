// Package memory provides a thread-safe in-memory implementation of store.Store.
package memory

import (
	"fmt"
	"sync"

	"github.com/mdmeraj-dev/skillnestx-go/store"
)

// Store is a thread-safe in-memory implementation of store.Store.
// Suitable for testing and single-process use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ store.Store = (*Store)(nil)

// New creates a new empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func makeKey(kind, id string) string {
	return kind + ":" + id
}

func (s *Store) Get(kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[makeKey(kind, id)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", kind, id, store.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) Put(kind, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[makeKey(kind, id)] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, makeKey(kind, id))
	return nil
}
