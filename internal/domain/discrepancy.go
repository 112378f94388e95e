package domain

import "time"

// Discrepancy records a provisional outcome that disagreed with the
// authoritative one at reconciliation. Not an error: the physical entry
// already happened, so it is surfaced for manual review, never auto-resolved.
type Discrepancy struct {
	ID                   string
	CredentialID         string
	TargetID             string
	DeviceID             string
	LocalSequence        int64
	CapturedAt           time.Time
	ProvisionalOutcome   ScanOutcome
	ProvisionalReason    *string
	AuthoritativeOutcome ScanOutcome
	AuthoritativeReason  *string
	Reviewed             bool
	CreatedAt            time.Time
}
