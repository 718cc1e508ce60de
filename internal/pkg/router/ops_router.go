package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MediaDash/internal/pkg/cache"
	"github.com/ManuelReschke/MediaDash/internal/pkg/database"
)

// OpsRouter serves the health endpoint used by load balancers.
type OpsRouter struct{}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", handleHealth)
}

func handleHealth(c *fiber.Ctx) error {
	checks := fiber.Map{"database": "ok", "cache": "ok"}
	status := fiber.StatusOK

	db := database.GetDB()
	if db == nil {
		checks["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		checks["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	}
	// the queue degrades to inline email delivery without redis
	if !cache.Available(time.Second) {
		checks["cache"] = "unavailable"
	}

	checks["status"] = "ok"
	if status != fiber.StatusOK {
		checks["status"] = "degraded"
	}
	return c.Status(status).JSON(checks)
}

func NewOpsRouter() *OpsRouter {
	return &OpsRouter{}
}
