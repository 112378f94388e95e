package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/events"
	"github.com/spec-kit/scan-service/internal/repository"
)

// BufferedScan is one entry from a device's offline queue: the original
// inputs plus the provisional outcome the operator already acted on.
type BufferedScan struct {
	Input              domain.ScanInput
	ProvisionalOutcome domain.ScanOutcome
	ProvisionalReason  *string
}

// DeviceBatch is the buffered queue one device submits on reconnect.
type DeviceBatch struct {
	DeviceID string
	Scans    []BufferedScan
}

// ScanVerdict is the per-scan result of a replay. Acked entries may be
// cleared from the device queue; a verdict is acked once the authoritative
// attempt is confirmed in the ledger, including on duplicate delivery.
type ScanVerdict struct {
	DeviceID      string
	LocalSequence int64
	Outcome       domain.ScanOutcome
	DenialReason  *string
	Duplicate     bool
	Acked         bool
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Verdicts      []ScanVerdict
	Discrepancies []domain.Discrepancy
}

// ReconcileService replays buffered offline scans through the validation
// engine in deterministic order and records discrepancies between the
// provisional outcomes and the authoritative ones.
type ReconcileService struct {
	engine        *ScanService
	ledger        repository.LedgerRepository
	discrepancies repository.DiscrepancyRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger

	// Serializes replay per device. Delivery is at-least-once: a device
	// retries a sync that timed out while the first delivery is still in
	// flight, so the idempotency probe and the engine run must not
	// interleave for the same device.
	deviceLocks *keyedLock
}

// ReconcileDependencies bundles collaborators for reconciliation.
type ReconcileDependencies struct {
	Engine          *ScanService
	LedgerRepo      repository.LedgerRepository
	DiscrepancyRepo repository.DiscrepancyRepository
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
}

// NewReconcileService constructs the coordinator.
func NewReconcileService(deps ReconcileDependencies) *ReconcileService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		engine:        deps.Engine,
		ledger:        deps.LedgerRepo,
		discrepancies: deps.DiscrepancyRepo,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		deviceLocks:   newKeyedLock(),
	}
}

// Replay merges the submitted batches into (capturedAt, deviceID,
// localSequence) order and re-runs each scan against current authoritative
// state. Replaying an already-reconciled (deviceID, localSequence) entry is a
// no-op beyond acking it: delivery is at-least-once.
func (s *ReconcileService) Replay(ctx context.Context, batches []DeviceBatch) (*ReconcileReport, error) {
	merged := mergeBatches(batches)
	report := &ReconcileReport{}

	for _, scan := range merged {
		verdict, err := s.replayOne(ctx, scan, report)
		if err != nil {
			return nil, err
		}
		report.Verdicts = append(report.Verdicts, verdict)
	}

	s.logger.Info("reconciliation run complete",
		zap.Int("scans", len(merged)),
		zap.Int("discrepancies", len(report.Discrepancies)))
	return report, nil
}

func (s *ReconcileService) replayOne(ctx context.Context, scan BufferedScan, report *ReconcileReport) (ScanVerdict, error) {
	lock := s.deviceLocks.lock("replay:" + scan.Input.DeviceID)
	defer lock.Unlock()

	existing, err := s.ledger.GetByDeviceSequence(ctx, scan.Input.DeviceID, scan.Input.LocalSequence)
	if err == nil {
		// Already reconciled on a previous, possibly interrupted run.
		return ScanVerdict{
			DeviceID:      scan.Input.DeviceID,
			LocalSequence: scan.Input.LocalSequence,
			Outcome:       existing.Outcome,
			DenialReason:  existing.DenialReason,
			Duplicate:     true,
			Acked:         true,
		}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return ScanVerdict{}, err
	}

	attempt, err := s.engine.ProcessReplayed(ctx, scan.Input)
	if err != nil {
		return ScanVerdict{}, err
	}

	if attempt.Outcome != scan.ProvisionalOutcome {
		s.recordDiscrepancy(ctx, scan, attempt, report)
	}

	return ScanVerdict{
		DeviceID:      attempt.DeviceID,
		LocalSequence: attempt.LocalSequence,
		Outcome:       attempt.Outcome,
		DenialReason:  attempt.DenialReason,
		Acked:         true,
	}, nil
}

// recordDiscrepancy stores the conflict for manual review. The physical
// entry already happened, so nothing is revoked; the authoritative outcome
// stands in the ledger and the mismatch is surfaced administratively.
func (s *ReconcileService) recordDiscrepancy(ctx context.Context, scan BufferedScan, attempt *domain.ScanAttempt, report *ReconcileReport) {
	d := &domain.Discrepancy{
		CredentialID:         attempt.CredentialID,
		TargetID:             attempt.TargetID,
		DeviceID:             attempt.DeviceID,
		LocalSequence:        attempt.LocalSequence,
		CapturedAt:           attempt.CapturedAt,
		ProvisionalOutcome:   scan.ProvisionalOutcome,
		ProvisionalReason:    scan.ProvisionalReason,
		AuthoritativeOutcome: attempt.Outcome,
		AuthoritativeReason:  attempt.DenialReason,
	}
	if err := s.discrepancies.Create(ctx, d); err != nil {
		s.logger.Error("failed to record discrepancy",
			zap.String("device_id", d.DeviceID),
			zap.Int64("local_sequence", d.LocalSequence),
			zap.Error(err))
		return
	}
	report.Discrepancies = append(report.Discrepancies, *d)

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventDiscrepancyRecorded,
			TargetID:  d.TargetID,
			Timestamp: time.Now(),
			Payload: events.DiscrepancyRecordedPayload{
				DiscrepancyID:        d.ID,
				CredentialID:         d.CredentialID,
				DeviceID:             d.DeviceID,
				LocalSequence:        d.LocalSequence,
				ProvisionalOutcome:   d.ProvisionalOutcome,
				AuthoritativeOutcome: d.AuthoritativeOutcome,
			},
		})
	}
}

// mergeBatches flattens all device queues into a single deterministic replay
// order: ascending capturedAt, ties broken by device ID then local sequence.
func mergeBatches(batches []DeviceBatch) []BufferedScan {
	var merged []BufferedScan
	for _, batch := range batches {
		for _, scan := range batch.Scans {
			if scan.Input.DeviceID == "" {
				scan.Input.DeviceID = batch.DeviceID
			}
			merged = append(merged, scan)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i].Input, merged[j].Input
		if !a.CapturedAt.Equal(b.CapturedAt) {
			return a.CapturedAt.Before(b.CapturedAt)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.LocalSequence < b.LocalSequence
	})
	return merged
}
