// Package memory is an in-process storage backend. It serves localstorage
// mode, where the server keeps no database, and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/moontv/gateway/internal/storage"
)

// Store is a thread-safe in-memory backend.
type Store struct {
	mu     sync.RWMutex
	users  map[string]string
	config *storage.AdminConfig
	closed bool
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users: make(map[string]string),
	}
}

func (s *Store) CheckUserExist(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, errClosed
	}
	_, ok := s.users[username]
	return ok, nil
}

func (s *Store) RegisterUser(_ context.Context, username, password string) error {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if _, ok := s.users[username]; ok {
		return storage.ErrUserExists
	}
	s.users[username] = hash
	return nil
}

func (s *Store) GetAdminConfig(_ context.Context) (*storage.AdminConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errClosed
	}
	return s.config.Clone(), nil
}

func (s *Store) SaveAdminConfig(_ context.Context, cfg *storage.AdminConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	s.config = cfg.Clone()
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// PasswordHash returns the stored hash for username.
func (s *Store) PasswordHash(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.users[username]
	return hash, ok
}

var errClosed = fmt.Errorf("memory store: closed")
