package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/internal/pkg/billing"
)

// BillingController exposes checkout, portal, catalog and subscription endpoints.
type BillingController struct {
	billing *billing.Service
}

// NewBillingController creates a billing controller
func NewBillingController(service *billing.Service) *BillingController {
	return &BillingController{billing: service}
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

// HandleCheckout creates a subscription checkout session for the caller's workspace.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be valid JSON")
	}
	if strings.TrimSpace(req.PriceID) == "" {
		return badRequest(c, "price_id is required")
	}
	if req.TrialDays < 0 {
		return badRequest(c, "trial_days must not be negative")
	}

	session, err := bc.billing.CreateCheckout(c.UserContext(), caller.WorkspaceID, caller.Email, req)
	if err != nil {
		return bc.billingError(c, "checkout", err)
	}
	return c.JSON(session)
}

// HandlePortal opens a customer portal session.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var req portalRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Request body must be valid JSON")
		}
	}
	url, err := bc.billing.CreatePortal(c.UserContext(), caller.WorkspaceID, caller.Email, strings.TrimSpace(req.ReturnURL))
	if err != nil {
		return bc.billingError(c, "portal", err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleProducts lists the active products with their active prices.
func (bc *BillingController) HandleProducts(c *fiber.Ctx) error {
	if _, ok := requireCaller(c); !ok {
		return nil
	}
	products, err := bc.billing.Catalog(c.UserContext())
	if err != nil {
		return bc.billingError(c, "catalog", err)
	}
	return c.JSON(fiber.Map{"products": products})
}

// HandleFreeSubscription subscribes the workspace to the free price. 201 when a
// subscription was created, 200 when an entitling one already existed.
func (bc *BillingController) HandleFreeSubscription(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	sub, created, err := bc.billing.CreateFreeSubscription(c.UserContext(), caller.WorkspaceID, caller.Email)
	if err != nil {
		return bc.billingError(c, "free subscription", err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"created":      created,
		"subscription": sub,
	})
}

// HandleSubscriptions lists the workspace's mirrored subscriptions.
func (bc *BillingController) HandleSubscriptions(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	subs, err := bc.billing.ListSubscriptions(caller.WorkspaceID)
	if err != nil {
		return bc.billingError(c, "subscriptions", err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs, "plan": caller.Plan})
}

func (bc *BillingController) billingError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, billing.ErrMissingPriceID):
		return badRequest(c, "price_id is required")
	case errors.Is(err, billing.ErrGatewayNotConfigured), errors.Is(err, billing.ErrFreePriceNotConfigured):
		return errorJSON(c, fiber.StatusServiceUnavailable, "billing_unavailable", "Billing is not configured")
	case errors.Is(err, billing.ErrCustomerNotFound):
		return notFound(c, "Billing customer not found")
	default:
		log.Errorf("[Billing] %s failed: %v", action, err)
		return errorJSON(c, fiber.StatusBadGateway, "billing_error", "Payment provider request failed")
	}
}
