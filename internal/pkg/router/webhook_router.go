package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MediaDash/app/controllers"
)

// WebhookRouter installs the callback endpoints of the media toolkit and the
// payment gateway. They authenticate by signature, not by user.
type WebhookRouter struct {
	controllers *controllers.Controllers
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	hooks := app.Group("/webhooks")
	hooks.Post("/media", h.controllers.Webhooks.HandleMediaWebhook)
	hooks.Post("/stripe", h.controllers.Webhooks.HandleStripeWebhook)
}

func NewWebhookRouter(ctrl *controllers.Controllers) *WebhookRouter {
	return &WebhookRouter{controllers: ctrl}
}
