package dto

import (
	"time"

	"github.com/spec-kit/scan-service/internal/domain"
)

// ScanRequest is a single online scan submitted by a device.
type ScanRequest struct {
	CredentialID  string          `json:"credential_id"`
	TargetID      string          `json:"target_id"`
	ScanType      domain.ScanType `json:"scan_type"`
	LocalSequence int64           `json:"local_sequence"`
	CapturedAt    *time.Time      `json:"captured_at,omitempty"`
}

// ScanOutcomeResponse is returned to the scanning device.
type ScanOutcomeResponse struct {
	Granted        bool               `json:"granted"`
	Outcome        domain.ScanOutcome `json:"outcome"`
	Reason         *string            `json:"reason,omitempty"`
	OccupancyAfter *int               `json:"occupancy_after,omitempty"`
	ProcessedAt    *time.Time         `json:"processed_at,omitempty"`
}

// BufferedScanRequest is one offline-captured scan in a sync batch.
type BufferedScanRequest struct {
	CredentialID       string             `json:"credential_id"`
	TargetID           string             `json:"target_id"`
	ScanType           domain.ScanType    `json:"scan_type"`
	LocalSequence      int64              `json:"local_sequence"`
	CapturedAt         time.Time          `json:"captured_at"`
	ProvisionalOutcome domain.ScanOutcome `json:"provisional_outcome"`
	ProvisionalReason  *string            `json:"provisional_reason,omitempty"`
}

// SyncRequest carries a device's buffered queue on reconnect.
type SyncRequest struct {
	Scans []BufferedScanRequest `json:"scans"`
}

// ScanVerdictResponse is the per-scan reconciliation result.
type ScanVerdictResponse struct {
	DeviceID      string             `json:"device_id"`
	LocalSequence int64              `json:"local_sequence"`
	Outcome       domain.ScanOutcome `json:"outcome"`
	Reason        *string            `json:"reason,omitempty"`
	Duplicate     bool               `json:"duplicate"`
	Acked         bool               `json:"acked"`
}

// SyncResponse summarizes a reconciliation run for one device.
type SyncResponse struct {
	Verdicts      []ScanVerdictResponse `json:"verdicts"`
	Discrepancies []DiscrepancyResponse `json:"discrepancies"`
}
