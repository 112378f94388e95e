package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/domain"
)

// RequireDevice ensures a scanning device is authenticated.
func RequireDevice() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeDevice || principal.Device == nil {
			return fiber.NewError(http.StatusForbidden, "device required")
		}
		return c.Next()
	}
}

// RequireAdmin ensures an operator is authenticated.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeAdmin || principal.Admin == nil {
			return fiber.NewError(http.StatusForbidden, "admin required")
		}
		return c.Next()
	}
}

// RequireAny ensures the caller is authenticated as either subject.
func RequireAny() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}
