package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/MediaDash/app/models"
)

// NormalizedSubscription is the provider-agnostic shape used by the billing
// service when syncing external subscription state into local tables.
type NormalizedSubscription struct {
	WorkspaceID            string
	Provider               string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderPriceID        string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	TrialEnd               *time.Time
	CancelAtPeriodEnd      bool
	RawPayload             []byte
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
	SignatureValid  bool
}

// CustomerParams describes a gateway customer to create.
type CustomerParams struct {
	WorkspaceID string
	Email       string
}

// CheckoutParams describes a subscription checkout session.
type CheckoutParams struct {
	WorkspaceID string
	CustomerID  string
	PriceID     string
	SuccessURL  string
	CancelURL   string
	TrialDays   int64
}

// SubscriptionParams describes a direct subscription. IdempotencyKey lets the
// gateway collapse retries of the same attempt.
type SubscriptionParams struct {
	WorkspaceID    string
	CustomerID     string
	PriceID        string
	IdempotencyKey string
}

// CheckoutSession is the hosted checkout page returned to the client.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// GatewayEvent is a verified webhook event.
type GatewayEvent struct {
	ID           string
	Type         string
	Subscription *NormalizedSubscription
	Raw          []byte
}

// Gateway is the payment provider as seen by the billing service.
type Gateway interface {
	Name() string
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*NormalizedSubscription, error)
	ListProducts(ctx context.Context) ([]models.BillingProduct, error)
	ListPrices(ctx context.Context) ([]models.BillingPrice, error)
	ParseWebhook(payload []byte, signature string) (*GatewayEvent, error)
}
