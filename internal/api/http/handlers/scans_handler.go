package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/api/dto"
	"github.com/spec-kit/scan-service/internal/auth"
	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/observability"
	"github.com/spec-kit/scan-service/internal/service"
	apperrors "github.com/spec-kit/scan-service/pkg/util"
)

// ScansHandler manages the online scan and offline sync endpoints.
type ScansHandler struct {
	engine    *service.ScanService
	reconcile *service.ReconcileService
	metrics   *observability.Metrics
}

// NewScansHandler constructs handler.
func NewScansHandler(engine *service.ScanService, reconcile *service.ReconcileService, metrics *observability.Metrics) *ScansHandler {
	return &ScansHandler{engine: engine, reconcile: reconcile, metrics: metrics}
}

// Process POST /scans.
func (h *ScansHandler) Process(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Device == nil {
		return apperrors.NewUnauthorized("device required")
	}
	var req dto.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CredentialID == "" || req.TargetID == "" {
		return apperrors.NewValidationError("credential_id and target_id required", nil)
	}
	if !validScanType(req.ScanType) {
		return apperrors.NewValidationError("scan_type must be ENTRY, EXIT or CHECKPOINT", nil)
	}
	if req.LocalSequence <= 0 {
		return apperrors.NewValidationError("local_sequence must be positive", nil)
	}

	capturedAt := time.Now()
	if req.CapturedAt != nil {
		capturedAt = *req.CapturedAt
	}

	attempt, err := h.engine.Process(c.Context(), domain.ScanInput{
		CredentialID:  req.CredentialID,
		TargetID:      req.TargetID,
		ScanType:      req.ScanType,
		DeviceID:      principal.Device.ID,
		LocalSequence: req.LocalSequence,
		CapturedAt:    capturedAt,
	})
	if err != nil {
		return err
	}

	h.recordScanMetric(attempt)
	return c.JSON(fiber.Map{"data": scanOutcomeResponse(attempt)})
}

// Sync POST /scans/sync.
func (h *ScansHandler) Sync(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Device == nil {
		return apperrors.NewUnauthorized("device required")
	}
	var req dto.SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Scans) == 0 {
		return apperrors.NewValidationError("scans required", nil)
	}

	batch := service.DeviceBatch{DeviceID: principal.Device.ID}
	for _, scan := range req.Scans {
		if !validScanType(scan.ScanType) {
			return apperrors.NewValidationError("scan_type must be ENTRY, EXIT or CHECKPOINT", nil)
		}
		if scan.LocalSequence <= 0 {
			return apperrors.NewValidationError("local_sequence must be positive", nil)
		}
		batch.Scans = append(batch.Scans, service.BufferedScan{
			Input: domain.ScanInput{
				CredentialID:  scan.CredentialID,
				TargetID:      scan.TargetID,
				ScanType:      scan.ScanType,
				DeviceID:      principal.Device.ID,
				LocalSequence: scan.LocalSequence,
				CapturedAt:    scan.CapturedAt,
			},
			ProvisionalOutcome: scan.ProvisionalOutcome,
			ProvisionalReason:  scan.ProvisionalReason,
		})
	}

	report, err := h.reconcile.Replay(c.Context(), []service.DeviceBatch{batch})
	if err != nil {
		return apperrors.MapError(err)
	}

	resp := dto.SyncResponse{}
	for _, verdict := range report.Verdicts {
		resp.Verdicts = append(resp.Verdicts, dto.ScanVerdictResponse{
			DeviceID:      verdict.DeviceID,
			LocalSequence: verdict.LocalSequence,
			Outcome:       verdict.Outcome,
			Reason:        verdict.DenialReason,
			Duplicate:     verdict.Duplicate,
			Acked:         verdict.Acked,
		})
	}
	for i := range report.Discrepancies {
		resp.Discrepancies = append(resp.Discrepancies, discrepancyResponse(&report.Discrepancies[i]))
		if h.metrics != nil {
			h.metrics.RecordDiscrepancy()
		}
	}
	return c.JSON(fiber.Map{"data": resp})
}

func (h *ScansHandler) recordScanMetric(attempt *domain.ScanAttempt) {
	if h.metrics == nil {
		return
	}
	reason := ""
	if attempt.DenialReason != nil {
		reason = *attempt.DenialReason
	}
	h.metrics.RecordScan(string(attempt.Outcome), reason)
}

func validScanType(scanType domain.ScanType) bool {
	switch scanType {
	case domain.ScanTypeEntry, domain.ScanTypeExit, domain.ScanTypeCheckpoint:
		return true
	default:
		return false
	}
}

func scanOutcomeResponse(attempt *domain.ScanAttempt) dto.ScanOutcomeResponse {
	return dto.ScanOutcomeResponse{
		Granted:        attempt.Granted(),
		Outcome:        attempt.Outcome,
		Reason:         attempt.DenialReason,
		OccupancyAfter: attempt.OccupancyAfter,
		ProcessedAt:    attempt.ProcessedAt,
	}
}

func discrepancyResponse(d *domain.Discrepancy) dto.DiscrepancyResponse {
	return dto.DiscrepancyResponse{
		ID:                   d.ID,
		CredentialID:         d.CredentialID,
		TargetID:             d.TargetID,
		DeviceID:             d.DeviceID,
		LocalSequence:        d.LocalSequence,
		CapturedAt:           d.CapturedAt,
		ProvisionalOutcome:   d.ProvisionalOutcome,
		ProvisionalReason:    d.ProvisionalReason,
		AuthoritativeOutcome: d.AuthoritativeOutcome,
		AuthoritativeReason:  d.AuthoritativeReason,
		Reviewed:             d.Reviewed,
		CreatedAt:            d.CreatedAt,
	}
}
