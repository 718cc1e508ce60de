package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/internal/pkg/billing"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mediajob"
)

// WebhookController receives callbacks from the media toolkit and the payment gateway.
type WebhookController struct {
	media   *mediajob.WebhookProcessor
	billing *billing.Service
}

// NewWebhookController creates a webhook controller
func NewWebhookController(media *mediajob.WebhookProcessor, billingService *billing.Service) *WebhookController {
	return &WebhookController{media: media, billing: billingService}
}

// HandleMediaWebhook applies a toolkit completion notice to the tracked job.
// Unknown jobs are acknowledged with 200 so the toolkit stops retrying.
func (wc *WebhookController) HandleMediaWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	res, err := wc.media.Handle(c.UserContext(), body, c.Get("X-Webhook-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, mediajob.ErrInvalidSignature):
			log.Warnf("[Webhook] rejected delivery with bad signature from %s", GetClientIP(c))
			return errorJSON(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
		case errors.Is(err, mediajob.ErrMalformedPayload):
			return badRequest(c, "Request body must be valid JSON")
		case errors.Is(err, mediajob.ErrMissingJobID):
			return badRequest(c, "id or job_id is required")
		default:
			log.Errorf("[Webhook] failed to apply delivery: %v", err)
			return internalError(c, "Failed to process webhook")
		}
	}

	return c.JSON(fiber.Map{
		"received":     true,
		"job_id":       res.JobID,
		"processed_at": res.ProcessedAt.Format(time.RFC3339),
	})
}

// HandleStripeWebhook verifies and applies one payment gateway event.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	out, err := wc.billing.HandleGatewayWebhook(c.UserContext(), body, c.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidWebhookSignature):
			return errorJSON(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
		case errors.Is(err, billing.ErrGatewayNotConfigured), errors.Is(err, billing.ErrWebhookNotConfigured):
			return errorJSON(c, fiber.StatusServiceUnavailable, "billing_unavailable", "Billing is not configured")
		default:
			// non-2xx makes the gateway redeliver the event
			return internalError(c, "Failed to process webhook")
		}
	}
	return c.JSON(fiber.Map{
		"received":  true,
		"event_id":  out.EventID,
		"type":      out.EventType,
		"duplicate": out.Duplicate,
	})
}
