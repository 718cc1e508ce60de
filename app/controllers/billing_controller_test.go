package controllers

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/internal/pkg/billing"
)

type stubGateway struct {
	customers atomic.Int64
	subs      atomic.Int64
}

func (g *stubGateway) Name() string { return models.BillingProviderStripe }

func (g *stubGateway) CreateCustomer(_ context.Context, params billing.CustomerParams) (string, error) {
	return fmt.Sprintf("cus_%d", g.customers.Add(1)), nil
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_test", URL: "https://checkout.example.com/" + params.CustomerID}, nil
}

func (g *stubGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example.com/" + customerID + "?return=" + returnURL, nil
}

func (g *stubGateway) CreateSubscription(_ context.Context, params billing.SubscriptionParams) (*billing.NormalizedSubscription, error) {
	return &billing.NormalizedSubscription{
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: fmt.Sprintf("sub_%d", g.subs.Add(1)),
		ProviderCustomerID:     params.CustomerID,
		ProviderPriceID:        params.PriceID,
		BillingInterval:        "month",
		Status:                 models.BillingStatusActive,
	}, nil
}

func (g *stubGateway) ListProducts(context.Context) ([]models.BillingProduct, error) {
	return []models.BillingProduct{{Provider: models.BillingProviderStripe, ProviderProductID: "prod_pro", Name: "Pro", Active: true}}, nil
}

func (g *stubGateway) ListPrices(context.Context) ([]models.BillingPrice, error) {
	return []models.BillingPrice{{Provider: models.BillingProviderStripe, ProviderPriceID: "price_pro", ProviderProductID: "prod_pro", Currency: "usd", UnitAmount: 1900, Interval: "month", Active: true}}, nil
}

func (g *stubGateway) ParseWebhook(_ []byte, signature string) (*billing.GatewayEvent, error) {
	if signature != "t=1,v1=ok" {
		return nil, billing.ErrInvalidWebhookSignature
	}
	return &billing.GatewayEvent{ID: "evt_1", Type: "invoice.paid"}, nil
}

func newBillingApp(t *testing.T, gateway billing.Gateway) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := billing.NewService(billing.NewRepository(db), gateway, billing.Config{
		FreePriceID:     "price_free",
		SuccessURL:      "https://app.example.com/ok",
		CancelURL:       "https://app.example.com/cancel",
		PortalReturnURL: "https://app.example.com/billing",
		CatalogTTL:      time.Hour,
		Currency:        "usd",
	})
	bc := NewBillingController(svc)
	wc := NewWebhookController(nil, svc)

	app := fiber.New()
	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)
	api := app.Group("/api/v1/billing", asUser(testUserID))
	api.Post("/checkout", bc.HandleCheckout)
	api.Post("/portal", bc.HandlePortal)
	api.Get("/products", bc.HandleProducts)
	api.Post("/subscription/free", bc.HandleFreeSubscription)
	api.Get("/subscriptions", bc.HandleSubscriptions)
	return app, db
}

func TestBillingCheckout(t *testing.T) {
	app, db := newBillingApp(t, &stubGateway{})

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/billing/checkout", map[string]string{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "price_id is required", body["message"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/billing/checkout", map[string]string{"price_id": "price_pro"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "cs_test", body["session_id"])
	assert.Equal(t, "https://checkout.example.com/cus_1", body["url"])

	// the second call reuses the stored customer
	_, _ = doJSON(t, app, http.MethodPost, "/api/v1/billing/portal", nil, nil)
	var n int64
	require.NoError(t, db.Model(&models.BillingCustomer{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestBillingPortal(t *testing.T) {
	app, _ := newBillingApp(t, &stubGateway{})
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/billing/portal", map[string]string{"return_url": "https://x.example.com"}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://portal.example.com/cus_1?return=https://x.example.com", body["url"])
}

func TestBillingProducts(t *testing.T) {
	app, _ := newBillingApp(t, &stubGateway{})
	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/billing/products", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	products := body["products"].([]interface{})
	require.Len(t, products, 1)
	product := products[0].(map[string]interface{})
	assert.Equal(t, "prod_pro", product["id"])
	assert.Len(t, product["prices"], 1)
}

func TestBillingFreeSubscription(t *testing.T) {
	gateway := &stubGateway{}
	app, _ := newBillingApp(t, gateway)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/billing/subscription/free", nil, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["created"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/v1/billing/subscription/free", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["created"])
	assert.Equal(t, int64(1), gateway.subs.Load())

	resp, body = doJSON(t, app, http.MethodGet, "/api/v1/billing/subscriptions", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["subscriptions"], 1)
}

func TestBilling_NotConfigured(t *testing.T) {
	app, _ := newBillingApp(t, nil)
	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/billing/checkout", map[string]string{"price_id": "price_pro"}, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "billing_unavailable", body["error"])
}

func TestStripeWebhook(t *testing.T) {
	app, _ := newBillingApp(t, &stubGateway{})

	resp, body := doJSON(t, app, http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, map[string]string{"Stripe-Signature": "bad"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_signature", body["error"])

	headers := map[string]string{"Stripe-Signature": "t=1,v1=ok"}
	resp, body = doJSON(t, app, http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, headers)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["duplicate"])

	resp, body = doJSON(t, app, http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, headers)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])
}
