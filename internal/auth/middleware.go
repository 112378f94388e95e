package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
	apperrors "github.com/spec-kit/scan-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	Device      *domain.Device
	Admin       *domain.AdminAccount
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	devices repository.DeviceRepository
	admins  repository.AdminRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, devices repository.DeviceRepository, admins repository.AdminRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, devices: devices, admins: admins}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject}

	switch claims.Subject {
	case domain.SubjectTypeDevice:
		device, err := m.devices.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewUnauthorized("device not found")
			}
			return apperrors.MapError(err)
		}
		if device.Status != domain.DeviceStatusActive {
			return apperrors.NewForbidden("device disabled")
		}
		principal.Device = device
	case domain.SubjectTypeAdmin:
		admin, err := m.admins.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewUnauthorized("admin not found")
			}
			return apperrors.MapError(err)
		}
		principal.Admin = admin
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
