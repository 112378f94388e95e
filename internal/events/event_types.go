package events

import (
	"time"

	"github.com/spec-kit/scan-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventScanGranted         EventType = "scan_granted"
	EventScanDenied          EventType = "scan_denied"
	EventScanAnomaly         EventType = "scan_anomaly"
	EventDiscrepancyRecorded EventType = "discrepancy_recorded"
	EventOverrideToggled     EventType = "override_toggled"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TargetID  string      `json:"target_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ScanProcessedPayload accompanies scan_granted / scan_denied / scan_anomaly.
type ScanProcessedPayload struct {
	CredentialID   string             `json:"credential_id"`
	DeviceID       string             `json:"device_id"`
	ScanType       domain.ScanType    `json:"scan_type"`
	Outcome        domain.ScanOutcome `json:"outcome"`
	DenialReason   *string            `json:"denial_reason,omitempty"`
	Source         domain.ScanSource  `json:"source"`
	OccupancyAfter *int               `json:"occupancy_after,omitempty"`
}

// DiscrepancyRecordedPayload accompanies discrepancy_recorded.
type DiscrepancyRecordedPayload struct {
	DiscrepancyID        string             `json:"discrepancy_id"`
	CredentialID         string             `json:"credential_id"`
	DeviceID             string             `json:"device_id"`
	LocalSequence        int64              `json:"local_sequence"`
	ProvisionalOutcome   domain.ScanOutcome `json:"provisional_outcome"`
	AuthoritativeOutcome domain.ScanOutcome `json:"authoritative_outcome"`
}

// OverrideToggledPayload accompanies override_toggled.
type OverrideToggledPayload struct {
	Enabled bool   `json:"enabled"`
	AdminID string `json:"admin_id"`
}
