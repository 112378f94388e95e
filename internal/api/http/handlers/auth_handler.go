package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/api/dto"
	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/service"
	apperrors "github.com/spec-kit/scan-service/pkg/util"
)

// AuthHandler manages device and admin login endpoints.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// LoginDevice POST /auth/devices/login.
func (h *AuthHandler) LoginDevice(c *fiber.Ctx) error {
	var req dto.DeviceLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.DeviceID == "" || req.Secret == "" {
		return apperrors.NewValidationError("device_id and secret required", nil)
	}

	device, token, exp, err := h.service.LoginDevice(c.Context(), req.DeviceID, req.Secret)
	if err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		Token:     token,
		ExpiresAt: exp,
		Subject:   string(domain.SubjectTypeDevice),
		SubjectID: device.ID,
	}})
}

// LoginAdmin POST /auth/admin/login.
func (h *AuthHandler) LoginAdmin(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	admin, token, exp, err := h.service.LoginAdmin(c.Context(), req.Email, req.Password)
	if err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		Token:     token,
		ExpiresAt: exp,
		Subject:   string(domain.SubjectTypeAdmin),
		SubjectID: admin.ID,
	}})
}
