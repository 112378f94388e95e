package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/api/dto"
	"github.com/spec-kit/scan-service/internal/auth"
	"github.com/spec-kit/scan-service/internal/repository"
	"github.com/spec-kit/scan-service/internal/service"
	apperrors "github.com/spec-kit/scan-service/pkg/util"
)

// TargetsHandler exposes occupancy readings and the emergency override.
type TargetsHandler struct {
	service *service.TargetService
}

// NewTargetsHandler constructs handler.
func NewTargetsHandler(targetService *service.TargetService) *TargetsHandler {
	return &TargetsHandler{service: targetService}
}

// Occupancy GET /targets/:id/occupancy.
func (h *TargetsHandler) Occupancy(c *fiber.Ctx) error {
	target, count, err := h.service.Occupancy(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("target", nil)
		}
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.OccupancyResponse{
		TargetID:          target.ID,
		Name:              target.Name,
		Type:              target.Type,
		Capacity:          target.Capacity,
		CurrentCount:      count,
		EmergencyOverride: target.EmergencyOverride,
	}})
}

// SetOverride PUT /targets/:id/override.
func (h *TargetsHandler) SetOverride(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Admin == nil {
		return apperrors.NewUnauthorized("admin required")
	}
	var req dto.OverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	target, err := h.service.SetOverride(c.Context(), c.Params("id"), req.Enabled, principal.Admin.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("target", nil)
		}
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"target_id":          target.ID,
		"emergency_override": target.EmergencyOverride,
	}})
}
