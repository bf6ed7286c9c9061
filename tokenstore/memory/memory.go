// Package memory provides the default in-process token store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/botfx/botauth/tokenstore"
)

// Store keeps token entries in a mutex-guarded map. The working set is one
// entry per (appId, audience) pair, so there is no eviction beyond expiry.
type Store struct {
	mu      sync.RWMutex
	entries map[string]tokenstore.Entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]tokenstore.Entry)}
}

func (s *Store) Get(_ context.Context, key string) (*tokenstore.Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !time.Now().Before(e.ExpiresOn) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, nil
	}
	out := e
	return &out, nil
}

func (s *Store) Put(_ context.Context, key string, entry tokenstore.Entry) error {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

var _ tokenstore.Store = (*Store)(nil)
