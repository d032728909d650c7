package storage

import (
	"context"
	"sync"
)

// Singleton holds one process-wide handler. The first successful Get fixes
// the configuration; later calls return the same handler and ignore their
// arguments. A failed Get may be retried.
type Singleton struct {
	mu sync.Mutex
	h  *Handler
}

// Get returns the shared handler, opening it on first use
func (s *Singleton) Get(ctx context.Context, cfg Config, driver Driver) (*Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h != nil {
		return s.h, nil
	}
	h, err := Open(ctx, cfg, driver)
	if err != nil {
		return nil, err
	}
	s.h = h
	return h, nil
}

// Reset closes and forgets the shared handler
func (s *Singleton) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return nil
	}
	err := s.h.Close()
	s.h = nil
	return err
}
