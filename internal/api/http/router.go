package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/scan-service/internal/api/http/handlers"
	"github.com/spec-kit/scan-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Scans          *handlers.ScansHandler
	Targets        *handlers.TargetsHandler
	Ledger         *handlers.LedgerHandler
	Discrepancies  *handlers.DiscrepanciesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/devices/login", cfg.Auth.LoginDevice)
	authGroup.Post("/admin/login", cfg.Auth.LoginAdmin)

	device := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireDevice())
	device.Post("/scans", cfg.Scans.Process)
	device.Post("/scans/sync", cfg.Scans.Sync)

	authed := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAny())
	authed.Get("/targets/:id/occupancy", cfg.Targets.Occupancy)

	admin := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Put("/targets/:id/override", cfg.Targets.SetOverride)
	admin.Get("/ledger", cfg.Ledger.List)
	admin.Get("/anomalies", cfg.Ledger.Anomalies)
	admin.Get("/discrepancies", cfg.Discrepancies.List)
	admin.Post("/discrepancies/:id/review", cfg.Discrepancies.Review)
}
