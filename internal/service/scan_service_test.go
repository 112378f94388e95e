package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/events"
	"github.com/spec-kit/scan-service/internal/occupancy"
	"github.com/spec-kit/scan-service/internal/repository/memory"
)

// Monday 10:00 UTC, inside the fixture access window.
var testNow = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)

type scanFixture struct {
	engine      *ScanService
	credentials *memory.CredentialStore
	targets     *memory.TargetStore
	ledger      *memory.LedgerStore
	tracker     *occupancy.MemoryTracker
	dispatcher  *capturingDispatcher
}

func newScanFixture(t *testing.T, creds []*domain.Credential, targets []*domain.Target) *scanFixture {
	t.Helper()
	f := &scanFixture{
		credentials: memory.NewCredentialStore(creds...),
		targets:     memory.NewTargetStore(targets...),
		ledger:      memory.NewLedgerStore(),
		tracker:     occupancy.NewMemoryTracker(nil),
		dispatcher:  &capturingDispatcher{},
	}
	f.engine = NewScanService(ScanDependencies{
		CredentialRepo: f.credentials,
		TargetRepo:     f.targets,
		LedgerRepo:     f.ledger,
		Tracker:        f.tracker,
		Dispatcher:     f.dispatcher,
	})
	f.engine.now = func() time.Time { return testNow }
	return f
}

// capturingDispatcher records published events for assertions.
type capturingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *capturingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *capturingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matched []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func identity(id string, role domain.SubjectRole) *domain.Credential {
	return &domain.Credential{
		ID:          id,
		SubjectID:   "subject-" + id,
		SubjectRole: role,
		Kind:        domain.CredentialKindIdentity,
		IssuedAt:    testNow.Add(-24 * time.Hour),
		ExpiresAt:   testNow.Add(24 * time.Hour),
		Status:      domain.CredentialStatusActive,
	}
}

func ticket(id string) *domain.Credential {
	c := identity(id, domain.RoleAttendee)
	c.Kind = domain.CredentialKindTicket
	return c
}

func facility(id string, roles ...domain.SubjectRole) *domain.Target {
	return &domain.Target{
		ID:     id,
		Type:   domain.TargetTypeFacility,
		Name:   id,
		Policy: domain.AccessPolicy{Roles: roles},
	}
}

func eventGate(id string, capacity int, roles ...domain.SubjectRole) *domain.Target {
	t := facility(id, roles...)
	t.Type = domain.TargetTypeEvent
	t.Capacity = &capacity
	return t
}

func scanInput(credID, targetID string, scanType domain.ScanType, seq int64) domain.ScanInput {
	return domain.ScanInput{
		CredentialID:  credID,
		TargetID:      targetID,
		ScanType:      scanType,
		DeviceID:      "device-1",
		LocalSequence: seq,
		CapturedAt:    testNow,
	}
}

func TestProcessGrantsEntry(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)

	attempt, err := f.engine.Process(context.Background(), scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGranted, attempt.Outcome)
	assert.Equal(t, domain.SourceOnline, attempt.Source)
	require.NotNil(t, attempt.OccupancyAfter)
	assert.Equal(t, 1, *attempt.OccupancyAfter)

	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	recorded := f.ledger.Attempts()
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.OutcomeGranted, recorded[0].Outcome)
}

func TestProcessDeniesAndRecords(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleFaculty)},
	)

	cases := []struct {
		name   string
		input  domain.ScanInput
		reason string
	}{
		{"unknown credential", scanInput("nope", "gate-1", domain.ScanTypeEntry, 1), domain.DenyUnknownCredential},
		{"unknown target", scanInput("cred-1", "nope", domain.ScanTypeEntry, 2), domain.DenyUnknownTarget},
		{"policy violation", scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 3), domain.DenyPolicyViolation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			attempt, err := f.engine.Process(context.Background(), tc.input)
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeDenied, attempt.Outcome)
			require.NotNil(t, attempt.DenialReason)
			assert.Equal(t, tc.reason, *attempt.DenialReason)
		})
	}

	// Every denial is still a ledger fact.
	assert.Len(t, f.ledger.Attempts(), len(cases))

	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessLookupFailure(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)
	f.credentials.FailLookup = errors.New("connection refused")

	attempt, err := f.engine.Process(context.Background(), scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDenied, attempt.Outcome)
	require.NotNil(t, attempt.DenialReason)
	assert.Equal(t, domain.DenyLookupFailed, *attempt.DenialReason)
}

func TestProcessSingleUseTicketRace(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{ticket("ticket-1")},
		[]*domain.Target{facility("gate-1", domain.RoleAttendee)},
	)

	const attempts = 8
	results := make([]*domain.ScanAttempt, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			input := scanInput("ticket-1", "gate-1", domain.ScanTypeEntry, int64(i+1))
			results[i], errs[i] = f.engine.Process(context.Background(), input)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	granted := 0
	for _, attempt := range results {
		if attempt.Granted() {
			granted++
		} else {
			require.NotNil(t, attempt.DenialReason)
			assert.Equal(t, domain.DenyAlreadyUsed, *attempt.DenialReason)
		}
	}
	assert.Equal(t, 1, granted)

	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessCapacityRace(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{
			identity("cred-1", domain.RoleStudent),
			identity("cred-2", domain.RoleStudent),
		},
		[]*domain.Target{eventGate("gate-1", 1, domain.RoleStudent)},
	)

	var wg sync.WaitGroup
	results := make([]*domain.ScanAttempt, 2)
	errs := make([]error, 2)
	wg.Add(2)
	for i, credID := range []string{"cred-1", "cred-2"} {
		go func(i int, credID string) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Process(context.Background(), scanInput(credID, "gate-1", domain.ScanTypeEntry, int64(i+1)))
		}(i, credID)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	granted, denied := 0, 0
	for _, attempt := range results {
		if attempt.Granted() {
			granted++
		} else {
			denied++
			require.NotNil(t, attempt.DenialReason)
			assert.Equal(t, domain.DenyAtCapacity, *attempt.DenialReason)
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, 1, denied)

	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessExitUnderflowClamps(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)

	// Exit with no recorded entries for the target; the count was never
	// incremented but the person is physically leaving.
	attempt, err := f.engine.Process(context.Background(), scanInput("cred-1", "gate-1", domain.ScanTypeExit, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGranted, attempt.Outcome)
	require.NotNil(t, attempt.OccupancyAfter)
	assert.Zero(t, *attempt.OccupancyAfter)
}

func TestProcessTicketExitRequiresEntry(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{ticket("ticket-1")},
		[]*domain.Target{facility("gate-1", domain.RoleAttendee)},
	)
	ctx := context.Background()

	attempt, err := f.engine.Process(ctx, scanInput("ticket-1", "gate-1", domain.ScanTypeExit, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDenied, attempt.Outcome)
	require.NotNil(t, attempt.DenialReason)
	assert.Equal(t, domain.DenyNoPriorEntry, *attempt.DenialReason)

	attempt, err = f.engine.Process(ctx, scanInput("ticket-1", "gate-1", domain.ScanTypeEntry, 2))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGranted, attempt.Outcome)

	attempt, err = f.engine.Process(ctx, scanInput("ticket-1", "gate-1", domain.ScanTypeExit, 3))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGranted, attempt.Outcome)
	require.NotNil(t, attempt.OccupancyAfter)
	assert.Zero(t, *attempt.OccupancyAfter)
}

func TestProcessMarkUsedFailureIsAnomalousGrant(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{ticket("ticket-1")},
		[]*domain.Target{facility("gate-1", domain.RoleAttendee)},
	)
	f.credentials.FailMarkUsed = errors.New("write timeout")

	attempt, err := f.engine.Process(context.Background(), scanInput("ticket-1", "gate-1", domain.ScanTypeEntry, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGrantedWithAnomaly, attempt.Outcome)
	assert.True(t, attempt.Granted())

	// Occupancy moved even though the ticket flag did not.
	count, err := f.tracker.Get(context.Background(), "gate-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessEmergencyOverride(t *testing.T) {
	gate := eventGate("gate-1", 1, domain.RoleFaculty)
	gate.EmergencyOverride = true
	f := newScanFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{gate},
	)

	// Wrong role, full gate: override admits anyway.
	_, err := f.tracker.Apply(context.Background(), "gate-1", 5)
	require.NoError(t, err)

	attempt, err := f.engine.Process(context.Background(), scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGranted, attempt.Outcome)
}

func TestProcessReusedDeviceSequenceIsAnomalousGrant(t *testing.T) {
	f := newScanFixture(t,
		[]*domain.Credential{identity("cred-1", domain.RoleStudent)},
		[]*domain.Target{facility("gate-1", domain.RoleStudent)},
	)
	ctx := context.Background()

	first, err := f.engine.Process(ctx, scanInput("cred-1", "gate-1", domain.ScanTypeEntry, 7))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGranted, first.Outcome)

	// Same (device, sequence) on a later scan: the ledger keeps the first
	// fact, and the second grant mutated occupancy with no audit row of its
	// own, so it must surface as an anomaly rather than a clean grant.
	second, err := f.engine.Process(ctx, scanInput("cred-1", "gate-1", domain.ScanTypeExit, 7))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeGrantedWithAnomaly, second.Outcome)

	recorded := f.ledger.Attempts()
	require.Len(t, recorded, 1)
	assert.Equal(t, domain.ScanTypeEntry, recorded[0].ScanType)

	anomalies := f.dispatcher.byType(events.EventScanAnomaly)
	require.Len(t, anomalies, 1)

	// A denied scan on a reused sequence stays a plain denial.
	third, err := f.engine.Process(ctx, scanInput("unknown", "gate-1", domain.ScanTypeEntry, 7))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDenied, third.Outcome)
	assert.Len(t, f.dispatcher.byType(events.EventScanAnomaly), 1)
}
