// Package offline implements the device-side scan buffer: a durable,
// order-preserving queue of scans captured while disconnected, each with a
// provisional outcome computed against a cached snapshot of server state.
package offline

import (
	"sync"
	"time"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/policy"
)

// Snapshot is the locally cached credential/target/occupancy state as of the
// last successful sync. Provisional grants are applied to it so successive
// offline captures see each other (a second scan of the same ticket, or a
// gate filled by earlier offline entries, denies provisionally too).
type Snapshot struct {
	mu          sync.Mutex
	credentials map[string]domain.Credential
	targets     map[string]domain.Target
	occupancy   map[string]int
	entries     map[string]bool
	takenAt     time.Time
}

// NewSnapshot returns an empty snapshot taken now.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		credentials: make(map[string]domain.Credential),
		targets:     make(map[string]domain.Target),
		occupancy:   make(map[string]int),
		entries:     make(map[string]bool),
		takenAt:     time.Now(),
	}
}

// PutCredential caches a credential record.
func (s *Snapshot) PutCredential(c domain.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[c.ID] = c
}

// PutTarget caches a target record.
func (s *Snapshot) PutTarget(t domain.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t.ID] = t
}

// SetOccupancy caches the last known headcount for a target.
func (s *Snapshot) SetOccupancy(targetID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occupancy[targetID] = count
}

// RecordEntry notes a known granted entry for a (credential, target) pair,
// enabling provisional exit evaluation.
func (s *Snapshot) RecordEntry(credentialID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entryKey(credentialID, targetID)] = true
}

func entryKey(credentialID, targetID string) string {
	return credentialID + "|" + targetID
}

// evaluate runs the shared policy logic against the cached state and applies
// the provisional effects of a grant locally.
func (s *Snapshot) evaluate(credentialID, targetID string, scanType domain.ScanType, now time.Time) policy.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cred *domain.Credential
	if c, ok := s.credentials[credentialID]; ok {
		cp := c
		cred = &cp
	}
	var target *domain.Target
	if t, ok := s.targets[targetID]; ok {
		cp := t
		target = &cp
	}

	override := false
	if target != nil {
		override = target.EmergencyOverride
	}

	decision := policy.Evaluate(policy.Input{
		Credential:    cred,
		Target:        target,
		Occupancy:     s.occupancy[targetID],
		Now:           now,
		ScanType:      scanType,
		HasPriorEntry: s.entries[entryKey(credentialID, targetID)],
		Override:      override,
	})

	if decision.Granted {
		next := s.occupancy[targetID] + decision.Delta
		if next < 0 {
			next = 0
		}
		s.occupancy[targetID] = next

		if cred != nil && cred.IsTicket() && scanType == domain.ScanTypeEntry {
			c := s.credentials[credentialID]
			c.Status = domain.CredentialStatusUsed
			s.credentials[credentialID] = c
			s.entries[entryKey(credentialID, targetID)] = true
		}
	}
	return decision
}
