package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
)

type sequenceKey struct {
	deviceID string
	sequence int64
}

// LedgerStore is an in-memory append-only LedgerRepository. Appended attempts
// are copied on the way in and out so callers can never mutate a stored row.
type LedgerStore struct {
	mu       sync.Mutex
	attempts []domain.ScanAttempt
	byKey    map[sequenceKey]int

	FailAppend error
}

// NewLedgerStore returns an empty ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{byKey: make(map[sequenceKey]int)}
}

func (s *LedgerStore) Append(_ context.Context, attempt *domain.ScanAttempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAppend != nil {
		return false, s.FailAppend
	}
	key := sequenceKey{deviceID: attempt.DeviceID, sequence: attempt.LocalSequence}
	if _, exists := s.byKey[key]; exists {
		return false, nil
	}
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	s.byKey[key] = len(s.attempts)
	s.attempts = append(s.attempts, *attempt)
	return true, nil
}

func (s *LedgerStore) GetByDeviceSequence(_ context.Context, deviceID string, localSequence int64) (*domain.ScanAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byKey[sequenceKey{deviceID: deviceID, sequence: localSequence}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := s.attempts[idx]
	return &cp, nil
}

func (s *LedgerStore) HasGrantedEntry(_ context.Context, credentialID, targetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attempts {
		a := &s.attempts[i]
		if a.CredentialID == credentialID && a.TargetID == targetID &&
			a.ScanType == domain.ScanTypeEntry && a.Granted() {
			return true, nil
		}
	}
	return false, nil
}

func (s *LedgerStore) ListWithFilter(_ context.Context, filter repository.LedgerFilter) ([]domain.ScanAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.ScanAttempt
	for i := range s.attempts {
		a := s.attempts[i]
		if filter.CredentialID != nil && a.CredentialID != *filter.CredentialID {
			continue
		}
		if filter.TargetID != nil && a.TargetID != *filter.TargetID {
			continue
		}
		if filter.DeviceID != nil && a.DeviceID != *filter.DeviceID {
			continue
		}
		if filter.Outcome != nil && a.Outcome != *filter.Outcome {
			continue
		}
		if filter.Source != nil && a.Source != *filter.Source {
			continue
		}
		if filter.From != nil && a.CapturedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && a.CapturedAt.After(*filter.To) {
			continue
		}
		result = append(result, a)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// Attempts returns a copy of every recorded attempt. Test helper.
func (s *LedgerStore) Attempts() []domain.ScanAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScanAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
