package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/cuadrilla-dispatch/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Assignments *handlers.AssignmentHandler
	Crews       *handlers.CrewHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	api := app.Group("/api")
	api.Post("/asignar-reclamo", cfg.Assignments.Assign)
	api.Get("/registros/:id", cfg.Assignments.GetRecord)
	api.Post("/registros/:id/en-proceso", cfg.Assignments.MarkInProgress)
	api.Post("/registros/:id/completar", cfg.Assignments.MarkCompleted)
	api.Get("/reclamos/:id/sincronizacion", cfg.Assignments.PendingSync)

	api.Post("/cuadrillas", cfg.Crews.Create)
	api.Get("/cuadrillas", cfg.Crews.List)
	api.Get("/cuadrillas/:id", cfg.Crews.Get)
	api.Get("/cuadrillas/:id/registros", cfg.Crews.Records)
	api.Get("/cuadrillas/:id/mensajes", cfg.Crews.Messages)
}
