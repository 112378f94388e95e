// Package memory provides in-memory implementations of the repository
// interfaces for tests and dev environments.
package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
)

// CredentialStore is an in-memory CredentialRepository.
type CredentialStore struct {
	mu    sync.Mutex
	items map[string]*domain.Credential

	// FailLookup and FailMarkUsed, when set, are returned by the matching
	// operation. Used to simulate infrastructure failures.
	FailLookup   error
	FailMarkUsed error
}

// NewCredentialStore seeds the store with the given credentials.
func NewCredentialStore(creds ...*domain.Credential) *CredentialStore {
	s := &CredentialStore{items: make(map[string]*domain.Credential)}
	for _, c := range creds {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a credential.
func (s *CredentialStore) Put(c *domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.items[c.ID] = &cp
}

func (s *CredentialStore) Lookup(_ context.Context, id string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLookup != nil {
		return nil, s.FailLookup
	}
	c, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *CredentialStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMarkUsed != nil {
		return s.FailMarkUsed
	}
	c, ok := s.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	if c.Kind != domain.CredentialKindTicket || c.Status != domain.CredentialStatusActive {
		return repository.ErrAlreadyUsed
	}
	c.Status = domain.CredentialStatusUsed
	return nil
}
