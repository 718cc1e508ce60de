package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MediaDash/app/controllers"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/auth"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the collaborators the routers need.
type Dependencies struct {
	Controllers *controllers.Controllers
	Verifier    auth.Verifier
	Workspaces  repository.WorkspaceRepository
	// LimiterStorage backs the API rate limiter. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Webhooks and ops endpoints are installed before /api so they are not
	// subject to the API rate limiter or user authentication.
	setup(app, NewOpsRouter(), NewWebhookRouter(deps.Controllers), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
