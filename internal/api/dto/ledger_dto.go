package dto

import (
	"time"

	"github.com/spec-kit/scan-service/internal/domain"
)

// ScanAttemptResponse is one ledger row, as exposed to the audit UI.
type ScanAttemptResponse struct {
	ID             string             `json:"id"`
	CredentialID   string             `json:"credential_id"`
	TargetID       string             `json:"target_id"`
	ScanType       domain.ScanType    `json:"scan_type"`
	DeviceID       string             `json:"device_id"`
	LocalSequence  int64              `json:"local_sequence"`
	CapturedAt     time.Time          `json:"captured_at"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
	Outcome        domain.ScanOutcome `json:"outcome"`
	DenialReason   *string            `json:"denial_reason,omitempty"`
	Source         domain.ScanSource  `json:"source"`
	OccupancyAfter *int               `json:"occupancy_after,omitempty"`
}

// DiscrepancyResponse is one provisional-vs-authoritative conflict.
type DiscrepancyResponse struct {
	ID                   string             `json:"id"`
	CredentialID         string             `json:"credential_id"`
	TargetID             string             `json:"target_id"`
	DeviceID             string             `json:"device_id"`
	LocalSequence        int64              `json:"local_sequence"`
	CapturedAt           time.Time          `json:"captured_at"`
	ProvisionalOutcome   domain.ScanOutcome `json:"provisional_outcome"`
	ProvisionalReason    *string            `json:"provisional_reason,omitempty"`
	AuthoritativeOutcome domain.ScanOutcome `json:"authoritative_outcome"`
	AuthoritativeReason  *string            `json:"authoritative_reason,omitempty"`
	Reviewed             bool               `json:"reviewed"`
	CreatedAt            time.Time          `json:"created_at"`
}
