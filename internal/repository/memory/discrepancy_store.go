package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
)

// DiscrepancyStore is an in-memory DiscrepancyRepository.
type DiscrepancyStore struct {
	mu    sync.Mutex
	items []domain.Discrepancy
}

// NewDiscrepancyStore returns an empty store.
func NewDiscrepancyStore() *DiscrepancyStore {
	return &DiscrepancyStore{}
}

func (s *DiscrepancyStore) Create(_ context.Context, d *domain.Discrepancy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.items = append(s.items, *d)
	return nil
}

func (s *DiscrepancyStore) List(_ context.Context, includeReviewed bool, limit, offset int) ([]domain.Discrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Discrepancy
	for _, d := range s.items {
		if !includeReviewed && d.Reviewed {
			continue
		}
		result = append(result, d)
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *DiscrepancyStore) MarkReviewed(_ context.Context, id string) (*domain.Discrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Reviewed = true
			cp := s.items[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}
