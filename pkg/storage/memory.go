package storage

import (
	"sync"
	"time"

	"github.com/bleasdale/flic2/pkg/transport"
)

// MemoryStore is an in-memory Store. It backs tests and throwaway
// sessions where persistence is unwanted.
type MemoryStore struct {
	mu     sync.Mutex
	closed bool
	creds  map[transport.Address]*Credentials
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[transport.Address]*Credentials)}
}

// Load returns the credentials for an address.
func (s *MemoryStore) Load(address transport.Address) (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	c, ok := s.creds[address]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// Save inserts or replaces credentials.
func (s *MemoryStore) Save(credentials *Credentials) error {
	if !credentials.Valid() {
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	c := *credentials
	now := time.Now()
	if existing, ok := s.creds[c.Address]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.creds[c.Address] = &c
	return nil
}

// Delete removes credentials for an address.
func (s *MemoryStore) Delete(address transport.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.creds, address)
	return nil
}

// List returns all stored credentials.
func (s *MemoryStore) List() ([]*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]*Credentials, 0, len(s.creds))
	for _, c := range s.creds {
		cc := *c
		out = append(out, &cc)
	}
	return out, nil
}

// Close marks the store unusable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
