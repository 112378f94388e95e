package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/api/dto"
	"github.com/spec-kit/scan-service/internal/repository"
	apperrors "github.com/spec-kit/scan-service/pkg/util"
)

// DiscrepanciesHandler exposes the reconciliation review queue.
type DiscrepanciesHandler struct {
	discrepancies repository.DiscrepancyRepository
}

// NewDiscrepanciesHandler constructs handler.
func NewDiscrepanciesHandler(discrepancies repository.DiscrepancyRepository) *DiscrepanciesHandler {
	return &DiscrepanciesHandler{discrepancies: discrepancies}
}

// List GET /discrepancies.
func (h *DiscrepanciesHandler) List(c *fiber.Ctx) error {
	includeReviewed := c.QueryBool("include_reviewed", false)
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)

	items, err := h.discrepancies.List(c.Context(), includeReviewed, pageSize, (page-1)*pageSize)
	if err != nil {
		return apperrors.MapError(err)
	}

	resp := make([]dto.DiscrepancyResponse, 0, len(items))
	for i := range items {
		resp = append(resp, discrepancyResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Review POST /discrepancies/:id/review.
func (h *DiscrepanciesHandler) Review(c *fiber.Ctx) error {
	d, err := h.discrepancies.MarkReviewed(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("discrepancy", nil)
		}
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": discrepancyResponse(d)})
}
