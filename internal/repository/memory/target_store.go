package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
)

// TargetStore is an in-memory TargetRepository.
type TargetStore struct {
	mu    sync.Mutex
	items map[string]*domain.Target

	FailLookup error
}

// NewTargetStore seeds the store with the given targets.
func NewTargetStore(targets ...*domain.Target) *TargetStore {
	s := &TargetStore{items: make(map[string]*domain.Target)}
	for _, t := range targets {
		s.Put(t)
	}
	return s
}

// Put inserts or replaces a target.
func (s *TargetStore) Put(t *domain.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.items[t.ID] = &cp
}

func (s *TargetStore) Lookup(_ context.Context, id string) (*domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLookup != nil {
		return nil, s.FailLookup
	}
	t, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *TargetStore) SetOverride(_ context.Context, id string, enabled bool) (*domain.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.EmergencyOverride = enabled
	cp := *t
	return &cp, nil
}
