package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/api/dto"
	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
	apperrors "github.com/spec-kit/scan-service/pkg/util"
)

// LedgerHandler exposes the audit ledger and the anomaly queue.
type LedgerHandler struct {
	ledger repository.LedgerRepository
}

// NewLedgerHandler constructs handler.
func NewLedgerHandler(ledger repository.LedgerRepository) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// List GET /ledger.
func (h *LedgerHandler) List(c *fiber.Ctx) error {
	filter := parseLedgerQuery(c)
	attempts, err := h.ledger.ListWithFilter(c.Context(), filter)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": attemptResponses(attempts)})
}

// Anomalies GET /anomalies. Grants whose state writes were left partially
// applied, awaiting manual correction.
func (h *LedgerHandler) Anomalies(c *fiber.Ctx) error {
	filter := parseLedgerQuery(c)
	outcome := domain.OutcomeGrantedWithAnomaly
	filter.Outcome = &outcome

	attempts, err := h.ledger.ListWithFilter(c.Context(), filter)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": attemptResponses(attempts)})
}

func parseLedgerQuery(c *fiber.Ctx) repository.LedgerFilter {
	filter := repository.LedgerFilter{}
	if v := c.Query("credential_id"); v != "" {
		filter.CredentialID = &v
	}
	if v := c.Query("target_id"); v != "" {
		filter.TargetID = &v
	}
	if v := c.Query("device_id"); v != "" {
		filter.DeviceID = &v
	}
	if v := strings.ToUpper(c.Query("outcome")); v != "" {
		outcome := domain.ScanOutcome(v)
		filter.Outcome = &outcome
	}
	if v := strings.ToUpper(c.Query("source")); v != "" {
		source := domain.ScanSource(v)
		filter.Source = &source
	}
	if from := parseTime(c.Query("from")); from != nil {
		filter.From = from
	}
	if to := parseTime(c.Query("to")); to != nil {
		filter.To = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func attemptResponses(attempts []domain.ScanAttempt) []dto.ScanAttemptResponse {
	items := make([]dto.ScanAttemptResponse, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		items = append(items, dto.ScanAttemptResponse{
			ID:             a.ID,
			CredentialID:   a.CredentialID,
			TargetID:       a.TargetID,
			ScanType:       a.ScanType,
			DeviceID:       a.DeviceID,
			LocalSequence:  a.LocalSequence,
			CapturedAt:     a.CapturedAt,
			ProcessedAt:    a.ProcessedAt,
			Outcome:        a.Outcome,
			DenialReason:   a.DenialReason,
			Source:         a.Source,
			OccupancyAfter: a.OccupancyAfter,
		})
	}
	return items
}
