package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/events"
	"github.com/spec-kit/scan-service/internal/occupancy"
	"github.com/spec-kit/scan-service/internal/policy"
	"github.com/spec-kit/scan-service/internal/repository"
)

// ScanService is the validation engine: the single synchronous decision path
// that turns a scan input into a recorded, authoritative ScanAttempt.
type ScanService struct {
	credentials repository.CredentialRepository
	targets     repository.TargetRepository
	ledger      repository.LedgerRepository
	tracker     occupancy.Tracker
	dispatcher  events.Dispatcher
	logger      *zap.Logger

	// Per-key serialization: two simultaneous entries on the last free
	// capacity slot, or two scans of one single-use ticket, must resolve
	// with exactly one grant. Lock order is credential then target.
	credentialLocks *keyedLock
	targetLocks     *keyedLock

	now func() time.Time
}

// ScanDependencies bundles collaborators for the engine.
type ScanDependencies struct {
	CredentialRepo repository.CredentialRepository
	TargetRepo     repository.TargetRepository
	LedgerRepo     repository.LedgerRepository
	Tracker        occupancy.Tracker
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// NewScanService constructs the engine.
func NewScanService(deps ScanDependencies) *ScanService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanService{
		credentials:     deps.CredentialRepo,
		targets:         deps.TargetRepo,
		ledger:          deps.LedgerRepo,
		tracker:         deps.Tracker,
		dispatcher:      deps.Dispatcher,
		logger:          logger,
		credentialLocks: newKeyedLock(),
		targetLocks:     newKeyedLock(),
		now:             time.Now,
	}
}

// Process handles one online scan end to end: lookups, policy evaluation,
// occupancy/ticket state writes, ledger append, event publication.
func (s *ScanService) Process(ctx context.Context, input domain.ScanInput) (*domain.ScanAttempt, error) {
	return s.process(ctx, input, domain.SourceOnline)
}

// ProcessReplayed runs the same path for a buffered scan during
// reconciliation, recording the attempt with source OFFLINE_SYNC.
func (s *ScanService) ProcessReplayed(ctx context.Context, input domain.ScanInput) (*domain.ScanAttempt, error) {
	return s.process(ctx, input, domain.SourceOfflineSync)
}

func (s *ScanService) process(ctx context.Context, input domain.ScanInput, source domain.ScanSource) (*domain.ScanAttempt, error) {
	cred, target, reason, err := s.lookup(ctx, input)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return s.finishDenied(ctx, input, source, reason)
	}

	if cred.IsTicket() {
		credLock := s.credentialLocks.lock("credential:" + cred.ID)
		defer credLock.Unlock()

		// The lock may have been acquired behind a scan that consumed
		// the ticket; re-read so the evaluation sees current state.
		cred, err = s.credentials.Lookup(ctx, input.CredentialID)
		if err != nil {
			return s.finishInfraDenied(ctx, input, source, err)
		}
	}

	targetLock := s.targetLocks.lock("target:" + target.ID)
	defer targetLock.Unlock()

	target, err = s.targets.Lookup(ctx, input.TargetID)
	if err != nil {
		return s.finishInfraDenied(ctx, input, source, err)
	}

	count, err := s.tracker.Get(ctx, target.ID)
	if err != nil {
		return s.finishInfraDenied(ctx, input, source, err)
	}

	hasPriorEntry := false
	if cred.IsTicket() && input.ScanType == domain.ScanTypeExit {
		hasPriorEntry, err = s.ledger.HasGrantedEntry(ctx, cred.ID, target.ID)
		if err != nil {
			return s.finishInfraDenied(ctx, input, source, err)
		}
	}

	decision := policy.Evaluate(policy.Input{
		Credential:    cred,
		Target:        target,
		Occupancy:     count,
		Now:           s.now(),
		ScanType:      input.ScanType,
		HasPriorEntry: hasPriorEntry,
		Override:      target.EmergencyOverride,
	})
	if !decision.Granted {
		return s.finishDenied(ctx, input, source, decision.Reason)
	}

	outcome := domain.OutcomeGranted
	newCount := count
	if decision.Delta != 0 {
		newCount, err = s.tracker.Apply(ctx, target.ID, decision.Delta)
		if err != nil {
			// Nothing was written yet; deny as an infrastructure
			// failure rather than grant without state update.
			return s.finishInfraDenied(ctx, input, source, err)
		}
	}

	if cred.IsTicket() && input.ScanType == domain.ScanTypeEntry {
		if err := s.credentials.MarkUsed(ctx, cred.ID); err != nil && !errors.Is(err, repository.ErrAlreadyUsed) {
			// Occupancy moved but the ticket flag did not: record the
			// inconsistency instead of leaving it silent.
			outcome = domain.OutcomeGrantedWithAnomaly
			s.logger.Error("ticket mark-used failed after occupancy update",
				zap.String("credential_id", cred.ID),
				zap.String("target_id", target.ID),
				zap.Error(err))
		}
	}

	return s.finish(ctx, input, source, outcome, nil, &newCount)
}

// lookup resolves the credential and target. A non-empty reason means the
// scan must be denied before evaluation (missing records, infra failures).
func (s *ScanService) lookup(ctx context.Context, input domain.ScanInput) (*domain.Credential, *domain.Target, string, error) {
	cred, err := s.credentials.Lookup(ctx, input.CredentialID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.DenyUnknownCredential, nil
		}
		s.logger.Error("credential lookup failed", zap.String("credential_id", input.CredentialID), zap.Error(err))
		return nil, nil, domain.DenyLookupFailed, nil
	}

	target, err := s.targets.Lookup(ctx, input.TargetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.DenyUnknownTarget, nil
		}
		s.logger.Error("target lookup failed", zap.String("target_id", input.TargetID), zap.Error(err))
		return nil, nil, domain.DenyLookupFailed, nil
	}

	return cred, target, "", nil
}

func (s *ScanService) finishDenied(ctx context.Context, input domain.ScanInput, source domain.ScanSource, reason string) (*domain.ScanAttempt, error) {
	return s.finish(ctx, input, source, domain.OutcomeDenied, &reason, nil)
}

func (s *ScanService) finishInfraDenied(ctx context.Context, input domain.ScanInput, source domain.ScanSource, cause error) (*domain.ScanAttempt, error) {
	s.logger.Error("scan infrastructure failure",
		zap.String("credential_id", input.CredentialID),
		zap.String("target_id", input.TargetID),
		zap.String("device_id", input.DeviceID),
		zap.Error(cause))
	reason := domain.DenyLookupFailed
	return s.finish(ctx, input, source, domain.OutcomeDenied, &reason, nil)
}

func (s *ScanService) finish(ctx context.Context, input domain.ScanInput, source domain.ScanSource, outcome domain.ScanOutcome, reason *string, occupancyAfter *int) (*domain.ScanAttempt, error) {
	processedAt := s.now()
	attempt := &domain.ScanAttempt{
		CredentialID:   input.CredentialID,
		TargetID:       input.TargetID,
		ScanType:       input.ScanType,
		DeviceID:       input.DeviceID,
		LocalSequence:  input.LocalSequence,
		CapturedAt:     input.CapturedAt,
		ProcessedAt:    &processedAt,
		Outcome:        outcome,
		DenialReason:   reason,
		Source:         source,
		OccupancyAfter: occupancyAfter,
	}

	inserted, err := s.ledger.Append(ctx, attempt)
	if err != nil {
		// The decision already stands and state was applied; a lost
		// audit write must not strand the gate, but it is loud.
		s.logger.Error("ledger append failed",
			zap.String("credential_id", attempt.CredentialID),
			zap.String("target_id", attempt.TargetID),
			zap.String("device_id", attempt.DeviceID),
			zap.Int64("local_sequence", attempt.LocalSequence),
			zap.Error(err))
	} else if !inserted {
		// The device reused a (device, sequence) pair: the ledger kept the
		// earlier fact and this decision has no audit row of its own. A
		// grant that mutated state this way is an inconsistency, not a
		// normal grant.
		s.logger.Error("device sequence reused, ledger kept the earlier attempt",
			zap.String("device_id", attempt.DeviceID),
			zap.Int64("local_sequence", attempt.LocalSequence),
			zap.String("credential_id", attempt.CredentialID),
			zap.String("target_id", attempt.TargetID))
		if attempt.Outcome == domain.OutcomeGranted {
			attempt.Outcome = domain.OutcomeGrantedWithAnomaly
		}
	}

	s.publish(ctx, attempt)
	return attempt, nil
}

func (s *ScanService) publish(ctx context.Context, attempt *domain.ScanAttempt) {
	if s.dispatcher == nil {
		return
	}
	eventType := events.EventScanDenied
	switch attempt.Outcome {
	case domain.OutcomeGranted:
		eventType = events.EventScanGranted
	case domain.OutcomeGrantedWithAnomaly:
		eventType = events.EventScanAnomaly
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TargetID:  attempt.TargetID,
		Timestamp: s.now(),
		Payload: events.ScanProcessedPayload{
			CredentialID:   attempt.CredentialID,
			DeviceID:       attempt.DeviceID,
			ScanType:       attempt.ScanType,
			Outcome:        attempt.Outcome,
			DenialReason:   attempt.DenialReason,
			Source:         attempt.Source,
			OccupancyAfter: attempt.OccupancyAfter,
		},
	})
}
