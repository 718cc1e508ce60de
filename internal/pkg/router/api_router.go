package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mediajob"
	"github.com/ManuelReschke/MediaDash/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	ctrl := h.deps.Controllers

	api := app.Group("/api", cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key, Idempotency-Key",
	}), limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT_PER_MINUTE", 120),
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, slow down",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	bearer := middleware.BearerAuth(h.deps.Verifier, h.deps.Workspaces)
	bearerOrKey := middleware.BearerOrAPIKeyAuth(h.deps.Verifier, h.deps.Workspaces)

	// media jobs
	media := v1.Group("/media", bearerOrKey)
	for _, op := range mediajob.Operations {
		media.Post(op.Route, ctrl.MediaJobs.HandleSubmit(op))
	}
	v1.Get("/jobs", bearerOrKey, ctrl.MediaJobs.HandleListJobs)
	v1.Get("/jobs/:id", bearerOrKey, ctrl.MediaJobs.HandleGetJob)

	// billing
	billingGroup := v1.Group("/billing", bearer)
	billingGroup.Post("/checkout", ctrl.Billing.HandleCheckout)
	billingGroup.Post("/portal", ctrl.Billing.HandlePortal)
	billingGroup.Get("/products", ctrl.Billing.HandleProducts)
	billingGroup.Post("/subscription/free", ctrl.Billing.HandleFreeSubscription)
	billingGroup.Get("/subscriptions", ctrl.Billing.HandleSubscriptions)

	// chat
	chats := v1.Group("/chats", bearer)
	chats.Post("/", ctrl.Chat.HandleCreate)
	chats.Get("/", ctrl.Chat.HandleList)
	chats.Get("/:id", ctrl.Chat.HandleGet)
	chats.Patch("/:id", ctrl.Chat.HandleUpdate)
	chats.Delete("/:id", ctrl.Chat.HandleDelete)
	chats.Post("/:id/completions", ctrl.Chat.HandleCompletion)

	v1.Post("/email/send", bearer, ctrl.Email.HandleSend)

	// account
	account := v1.Group("/account")
	account.Get("/", bearerOrKey, ctrl.Account.HandleGetAccount)
	account.Patch("/settings", bearer, ctrl.Account.HandleUpdateSettings)
	account.Post("/api-key", bearer, ctrl.Account.HandleIssueAPIKey)
	account.Delete("/api-key", bearer, ctrl.Account.HandleRevokeAPIKey)

	v1.Post("/uploads/presign", bearerOrKey, ctrl.Uploads.HandlePresign)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
