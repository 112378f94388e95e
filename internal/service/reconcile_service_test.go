package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository/memory"
)

type reconcileFixture struct {
	*scanFixture
	reconcile     *ReconcileService
	discrepancies *memory.DiscrepancyStore
}

func newReconcileFixture(t *testing.T, creds []*domain.Credential, targets []*domain.Target) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		scanFixture:   newScanFixture(t, creds, targets),
		discrepancies: memory.NewDiscrepancyStore(),
	}
	f.reconcile = NewReconcileService(ReconcileDependencies{
		Engine:          f.engine,
		LedgerRepo:      f.ledger,
		DiscrepancyRepo: f.discrepancies,
	})
	return f
}

func buffered(input domain.ScanInput, outcome domain.ScanOutcome, reason string) BufferedScan {
	scan := BufferedScan{Input: input, ProvisionalOutcome: outcome}
	if reason != "" {
		scan.ProvisionalReason = &reason
	}
	return scan
}

func TestReplayMatchingOutcomes(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)

	entry := scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1)
	exit := scanInput("cred-1", "gate-1", domain.ScanTypeExit, 2)
	exit.CapturedAt = testNow.Add(time.Minute)

	report, err := f.reconcile.Replay(context.Background(), []DeviceBatch{{
		DeviceID: "device-1",
		Scans: []BufferedScan{
			buffered(entry, domain.OutcomeGranted, ""),
			buffered(exit, domain.OutcomeGranted, ""),
		},
	}})
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 2)
	assert.Empty(t, report.Discrepancies)

	for _, verdict := range report.Verdicts {
		assert.Equal(t, domain.OutcomeGranted, verdict.Outcome)
		assert.True(t, verdict.Acked)
		assert.False(t, verdict.Duplicate)
	}

	recorded := f.ledger.Attempts()
	require.Len(t, recorded, 2)
	for _, attempt := range recorded {
		assert.Equal(t, domain.SourceOfflineSync, attempt.Source)
	}
}

func TestReplayMergesBatchesDeterministically(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{
			identity("cred-1", domain.RoleStudent),
			identity("cred-2", domain.RoleStudent),
			identity("cred-3", domain.RoleStudent),
		},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)

	early := scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1)
	early.DeviceID = "device-b"
	late := scanInput("cred-2", "gate-1", domain.ScanTypeEntry, 1)
	late.DeviceID = "device-a"
	late.CapturedAt = testNow.Add(time.Minute)
	// Same capture time as early; tie broken by device ID.
	tied := scanInput("cred-3", "gate-1", domain.ScanTypeEntry, 2)
	tied.DeviceID = "device-a"

	report, err := f.reconcile.Replay(context.Background(), []DeviceBatch{
		{DeviceID: "device-b", Scans: []BufferedScan{buffered(early, domain.OutcomeGranted, "")}},
		{DeviceID: "device-a", Scans: []BufferedScan{
			buffered(late, domain.OutcomeGranted, ""),
			buffered(tied, domain.OutcomeGranted, ""),
		}},
	})
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 3)

	assert.Equal(t, "device-a", report.Verdicts[0].DeviceID)
	assert.Equal(t, int64(2), report.Verdicts[0].LocalSequence)
	assert.Equal(t, "device-b", report.Verdicts[1].DeviceID)
	assert.Equal(t, "device-a", report.Verdicts[2].DeviceID)
	assert.Equal(t, int64(1), report.Verdicts[2].LocalSequence)
}

func TestReplayIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)
	ctx := context.Background()

	batch := []DeviceBatch{{
		DeviceID: "device-1",
		Scans:    []BufferedScan{buffered(scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1), domain.OutcomeGranted, "")},
	}}

	first, err := f.reconcile.Replay(ctx, batch)
	require.NoError(t, err)
	require.Len(t, first.Verdicts, 1)
	assert.False(t, first.Verdicts[0].Duplicate)

	// The device resubmits after a lost ack; nothing is applied twice.
	second, err := f.reconcile.Replay(ctx, batch)
	require.NoError(t, err)
	require.Len(t, second.Verdicts, 1)
	assert.True(t, second.Verdicts[0].Duplicate)
	assert.True(t, second.Verdicts[0].Acked)
	assert.Equal(t, first.Verdicts[0].Outcome, second.Verdicts[0].Outcome)

	assert.Len(t, f.ledger.Attempts(), 1)

	count, err := f.tracker.Get(ctx, "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// slowLedger widens the window between the idempotency check and the
// replay, so interleavings that are rare in production show up reliably.
type slowLedger struct {
	*memory.LedgerStore
	delay time.Duration
}

func (l *slowLedger) GetByDeviceSequence(ctx context.Context, deviceID string, localSequence int64) (*domain.ScanAttempt, error) {
	time.Sleep(l.delay)
	return l.LedgerStore.GetByDeviceSequence(ctx, deviceID, localSequence)
}

func TestReplayConcurrentDuplicateDeliveries(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)
	reconcile := NewReconcileService(ReconcileDependencies{
		Engine:          f.engine,
		LedgerRepo:      &slowLedger{LedgerStore: f.ledger, delay: 2 * time.Millisecond},
		DiscrepancyRepo: f.discrepancies,
	})

	// The device retries a sync whose ack was lost while the first delivery
	// is still in flight.
	batch := []DeviceBatch{{
		DeviceID: "device-1",
		Scans:    []BufferedScan{buffered(scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1), domain.OutcomeGranted, "")},
	}}

	reports := make([]*ReconcileReport, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = reconcile.Replay(context.Background(), batch)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one delivery replayed the scan; the other acked a duplicate.
	duplicates := 0
	for _, report := range reports {
		require.Len(t, report.Verdicts, 1)
		assert.True(t, report.Verdicts[0].Acked)
		if report.Verdicts[0].Duplicate {
			duplicates++
		}
	}
	assert.Equal(t, 1, duplicates)

	assert.Len(t, f.ledger.Attempts(), 1)
	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReplayRecordsDiscrepancy(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{ticket("ticket-1")},
		[]*domain.Target{facility("gate-1", domain.RoleAttendee)},
	)
	ctx := context.Background()

	// The ticket was consumed online while the offline device still held it
	// as valid and provisionally admitted the holder.
	online := scanInput("ticket-1", "gate-1", domain.ScanTypeEntry, 1)
	online.DeviceID = "device-online"
	_, err := f.engine.Process(ctx, online)
	require.NoError(t, err)

	offline := scanInput("ticket-1", "gate-1", domain.ScanTypeEntry, 1)
	offline.DeviceID = "device-offline"
	offline.CapturedAt = testNow.Add(time.Minute)

	report, err := f.reconcile.Replay(ctx, []DeviceBatch{{
		DeviceID: "device-offline",
		Scans:    []BufferedScan{buffered(offline, domain.OutcomeGranted, "")},
	}})
	require.NoError(t, err)

	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, domain.OutcomeDenied, report.Verdicts[0].Outcome)
	require.NotNil(t, report.Verdicts[0].DenialReason)
	assert.Equal(t, domain.DenyAlreadyUsed, *report.Verdicts[0].DenialReason)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, domain.OutcomeGranted, d.ProvisionalOutcome)
	assert.Equal(t, domain.OutcomeDenied, d.AuthoritativeOutcome)
	assert.Equal(t, "device-offline", d.DeviceID)

	stored, err := f.discrepancies.List(ctx, false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestReplayNoDiscrepancyWhenProvisionalAlsoDenied(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleFaculty)},
	)

	scan := scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1)
	report, err := f.reconcile.Replay(context.Background(), []DeviceBatch{{
		DeviceID: "device-1",
		Scans:    []BufferedScan{buffered(scan, domain.OutcomeDenied, domain.DenyPolicyViolation)},
	}})
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, domain.OutcomeDenied, report.Verdicts[0].Outcome)
	assert.Empty(t, report.Discrepancies)
}

func TestReplayOverCapacityGate(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{
			identity("cred-1", domain.RoleStudent),
			identity("cred-2", domain.RoleStudent),
		},
		[]*domain.Target{eventGate("gate-1", 1, domain.RoleStudent)},
	)
	ctx := context.Background()

	// The gate filled up online while both offline scans were provisionally
	// granted against a stale snapshot.
	online := scanInput("cred-2", "gate-1", domain.ScanTypeEntry, 1)
	online.DeviceID = "device-online"
	_, err := f.engine.Process(ctx, online)
	require.NoError(t, err)

	offline := scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1)
	offline.DeviceID = "device-offline"
	report, err := f.reconcile.Replay(ctx, []DeviceBatch{{
		DeviceID: "device-offline",
		Scans:    []BufferedScan{buffered(offline, domain.OutcomeGranted, "")},
	}})
	require.NoError(t, err)

	require.Len(t, report.Verdicts, 1)
	require.NotNil(t, report.Verdicts[0].DenialReason)
	assert.Equal(t, domain.DenyAtCapacity, *report.Verdicts[0].DenialReason)
	assert.Len(t, report.Discrepancies, 1)

	// The authoritative count never exceeded capacity.
	count, err := f.tracker.Get(ctx, "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReplayThreeProvisionalGrantsAgainstCapacityOne(t *testing.T) {
	f := newReconcileFixture(t,
		[]*domain.Credential{
			identity("cred-1", domain.RoleStudent),
			identity("cred-2", domain.RoleStudent),
			identity("cred-3", domain.RoleStudent),
		},
		[]*domain.Target{eventGate("gate-1", 1, domain.RoleStudent)},
	)

	// One offline device admitted three people against a capacity-1 gate.
	// Replay in capture order admits the first and turns the rest away.
	scans := make([]BufferedScan, 0, 3)
	for i, credID := range []string{"cred-1", "cred-2", "cred-3"} {
		in := scanInput(credID, "gate-1", domain.ScanTypeEntry, int64(i+1))
		in.CapturedAt = testNow.Add(time.Duration(i) * time.Minute)
		scans = append(scans, buffered(in, domain.OutcomeGranted, ""))
	}

	report, err := f.reconcile.Replay(context.Background(), []DeviceBatch{{DeviceID: "device-1", Scans: scans}})
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 3)

	assert.Equal(t, domain.OutcomeGranted, report.Verdicts[0].Outcome)
	for _, verdict := range report.Verdicts[1:] {
		assert.Equal(t, domain.OutcomeDenied, verdict.Outcome)
		require.NotNil(t, verdict.DenialReason)
		assert.Equal(t, domain.DenyAtCapacity, *verdict.DenialReason)
	}

	assert.Len(t, report.Discrepancies, 2)
	stored, err := f.discrepancies.List(context.Background(), false, 10, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
