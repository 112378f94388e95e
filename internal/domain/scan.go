package domain

import "time"

// ScanType enumerates the kinds of scan a device can submit.
type ScanType string

const (
	ScanTypeEntry      ScanType = "ENTRY"
	ScanTypeExit       ScanType = "EXIT"
	ScanTypeCheckpoint ScanType = "CHECKPOINT"
)

// ScanOutcome enumerates terminal states of a processed scan.
type ScanOutcome string

const (
	OutcomeGranted ScanOutcome = "GRANTED"
	OutcomeDenied  ScanOutcome = "DENIED"
	// OutcomeGrantedWithAnomaly marks a grant whose state writes were left
	// partially applied; surfaced to the admin anomaly queue.
	OutcomeGrantedWithAnomaly ScanOutcome = "GRANTED_WITH_ANOMALY"
)

// ScanSource records whether a scan was processed live or replayed.
type ScanSource string

const (
	SourceOnline      ScanSource = "ONLINE"
	SourceOfflineSync ScanSource = "OFFLINE_SYNC"
)

// Denial reasons, as they appear on the wire and in the ledger.
const (
	DenyUnknownCredential = "unknown_credential"
	DenyRevoked           = "revoked"
	DenyExpired           = "expired"
	DenyAlreadyUsed       = "already_used"
	DenyNoPriorEntry      = "no_prior_entry"
	DenyPolicyViolation   = "policy_violation"
	DenyAtCapacity        = "at_capacity"
	DenyUnknownTarget     = "unknown_target"
	DenyLookupFailed      = "lookup_failed"
)

// ScanInput is the decoded payload contract consumed from the QR decoder.
type ScanInput struct {
	CredentialID  string
	TargetID      string
	ScanType      ScanType
	DeviceID      string
	LocalSequence int64
	CapturedAt    time.Time
}

// ScanAttempt is an immutable fact recorded for every scan. Once appended to
// the ledger it is never mutated or deleted.
type ScanAttempt struct {
	ID             string
	CredentialID   string
	TargetID       string
	ScanType       ScanType
	DeviceID       string
	LocalSequence  int64
	CapturedAt     time.Time
	ProcessedAt    *time.Time
	Outcome        ScanOutcome
	DenialReason   *string
	Source         ScanSource
	OccupancyAfter *int
}

// Granted reports whether the attempt admitted the subject. Anomalous grants
// still count: the person physically passed the gate.
func (a *ScanAttempt) Granted() bool {
	return a.Outcome == OutcomeGranted || a.Outcome == OutcomeGrantedWithAnomaly
}
