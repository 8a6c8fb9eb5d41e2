// memory — хранилище в памяти процесса (тесты, --ephemeral).
package memory

import (
	"context"
	"sync"

	"github.com/pribylovaa/go-cheffrey-client/internal/storage"
)

// Store — потокобезопасная map.
type Store struct {
	mu sync.RWMutex
	m  map[string]string
}

// New создаёт пустое хранилище.
func New() *Store {
	return &Store{m: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.m[key]
	if !ok {
		return "", storage.ErrNotFound
	}

	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.m, key)
	return nil
}

func (s *Store) Close() error { return nil }

var _ storage.KV = (*Store)(nil)
