package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/change-request-service/internal/api/http/handlers"
	"github.com/spec-kit/change-request-service/internal/auth"
	"github.com/spec-kit/change-request-service/internal/domain"
	"github.com/spec-kit/change-request-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	ChangeRequests *handlers.ChangeRequestsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireActor())

	crs := api.Group("/change-requests")
	crs.Post("/", auth.RequireRole(domain.RoleRequester), cfg.ChangeRequests.Create)
	crs.Get("/", cfg.ChangeRequests.List)
	crs.Get("/number/:number", cfg.ChangeRequests.GetByNumber)
	crs.Get("/:id", cfg.ChangeRequests.Get)
	crs.Delete("/:id", cfg.ChangeRequests.Delete)

	crs.Get("/:id/permissions", cfg.ChangeRequests.Permissions)
	crs.Get("/:id/history", cfg.ChangeRequests.History)
	crs.Get("/:id/approvals", cfg.ChangeRequests.Approvals)
	crs.Get("/:id/testing-results", cfg.ChangeRequests.TestingResults)
	crs.Get("/:id/qa-checklists", cfg.ChangeRequests.QAChecklists)
	crs.Get("/:id/deployment-team", cfg.ChangeRequests.DeploymentTeam)
	crs.Get("/:id/attachments", cfg.ChangeRequests.Attachments)

	crs.Post("/:id/approve", cfg.ChangeRequests.Approve)
	crs.Post("/:id/reject", cfg.ChangeRequests.Reject)
	crs.Post("/:id/close", cfg.ChangeRequests.Close)
	crs.Post("/:id/edit-decision", cfg.ChangeRequests.EditDecision)
	crs.Post("/:id/attachments", cfg.ChangeRequests.AddAttachment)
}
