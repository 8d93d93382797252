// Package store holds tracked applications in memory. Mutations run one at
// a time under the write lock; reads hand out deep copies so callers never
// observe a half-applied change.
package store

import (
	"errors"
	"sort"
	"sync"

	"permitline/internal/domain"
)

// ErrNotFound is returned when no application exists for an id.
var ErrNotFound = errors.New("application not found")

// Store is an in-memory application collection keyed by id.
type Store struct {
	mu   sync.RWMutex
	apps map[string]*domain.Application
}

// New returns an empty store.
func New() *Store {
	return &Store{apps: make(map[string]*domain.Application)}
}

// Put inserts or replaces an application snapshot.
func (s *Store) Put(app domain.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := app.Clone()
	s.apps[app.ID] = &clone
}

// Get returns a copy of the application, or ErrNotFound.
func (s *Store) Get(id string) (domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return domain.Application{}, ErrNotFound
	}
	return app.Clone(), nil
}

// Mutate applies fn to the stored application under the write lock. The
// record is only updated when fn returns nil. Unknown ids yield ErrNotFound
// without calling fn.
func (s *Store) Mutate(id string, fn func(*domain.Application) error) (domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return domain.Application{}, ErrNotFound
	}
	working := app.Clone()
	if err := fn(&working); err != nil {
		return domain.Application{}, err
	}
	s.apps[id] = &working
	return working.Clone(), nil
}

// ListByUser returns copies of one user's applications, most recently
// updated first. Ties fall back to creation time, then id, so ordering is
// stable across calls.
func (s *Store) ListByUser(userID string) []domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Application
	for _, app := range s.apps {
		if app.UserID == userID {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// All returns copies of every application, in unspecified order.
func (s *Store) All() []domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Application, 0, len(s.apps))
	for _, app := range s.apps {
		out = append(out, app.Clone())
	}
	return out
}

// Len reports the number of stored applications.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apps)
}
