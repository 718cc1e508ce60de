package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/MediaDash/app/models"
)

// StripeGateway talks to Stripe through the official SDK.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: strings.TrimSpace(webhookSecret),
	}
}

func (g *StripeGateway) Name() string { return models.BillingProviderStripe }

func (g *StripeGateway) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	p := &stripe.CustomerParams{
		Email: stripe.String(params.Email),
	}
	p.Context = ctx
	p.AddMetadata("workspace_id", params.WorkspaceID)
	// Concurrent first resolutions for one workspace collapse into one customer.
	p.SetIdempotencyKey("customer-create-" + params.WorkspaceID)

	c, err := g.api.Customers.New(p)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(params.CustomerID),
		ClientReferenceID: stripe.String(params.WorkspaceID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"workspace_id": params.WorkspaceID},
		},
	}
	if params.TrialDays > 0 {
		p.SubscriptionData.TrialPeriodDays = stripe.Int64(params.TrialDays)
	}
	p.Context = ctx

	s, err := g.api.CheckoutSessions.New(p)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	p := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	p.Context = ctx

	s, err := g.api.BillingPortalSessions.New(p)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return s.URL, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, params SubscriptionParams) (*NormalizedSubscription, error) {
	p := &stripe.SubscriptionParams{
		Customer: stripe.String(params.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(params.PriceID)},
		},
	}
	p.Context = ctx
	p.AddMetadata("workspace_id", params.WorkspaceID)
	if params.IdempotencyKey != "" {
		p.SetIdempotencyKey(params.IdempotencyKey)
	}

	sub, err := g.api.Subscriptions.New(p)
	if err != nil {
		return nil, fmt.Errorf("stripe create subscription: %w", err)
	}
	raw, _ := json.Marshal(sub)
	return normalizeStripeSubscription(sub, raw), nil
}

func (g *StripeGateway) ListProducts(ctx context.Context) ([]models.BillingProduct, error) {
	p := &stripe.ProductListParams{Active: stripe.Bool(true)}
	p.Context = ctx

	now := time.Now()
	var out []models.BillingProduct
	it := g.api.Products.List(p)
	for it.Next() {
		sp := it.Product()
		meta := make(map[string]interface{}, len(sp.Metadata))
		for k, v := range sp.Metadata {
			meta[k] = v
		}
		out = append(out, models.BillingProduct{
			Provider:          models.BillingProviderStripe,
			ProviderProductID: sp.ID,
			Name:              sp.Name,
			Description:       sp.Description,
			Active:            sp.Active,
			Metadata:          meta,
			SyncedAt:          now,
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe list products: %w", err)
	}
	return out, nil
}

func (g *StripeGateway) ListPrices(ctx context.Context) ([]models.BillingPrice, error) {
	p := &stripe.PriceListParams{Active: stripe.Bool(true)}
	p.Context = ctx

	now := time.Now()
	var out []models.BillingPrice
	it := g.api.Prices.List(p)
	for it.Next() {
		sp := it.Price()
		price := models.BillingPrice{
			Provider:        models.BillingProviderStripe,
			ProviderPriceID: sp.ID,
			Currency:        string(sp.Currency),
			UnitAmount:      sp.UnitAmount,
			Active:          sp.Active,
			SyncedAt:        now,
		}
		if sp.Product != nil {
			price.ProviderProductID = sp.Product.ID
		}
		if sp.Recurring != nil {
			price.Interval = string(sp.Recurring.Interval)
			price.IntervalCount = sp.Recurring.IntervalCount
			price.TrialPeriodDays = sp.Recurring.TrialPeriodDays
		}
		out = append(out, price)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe list prices: %w", err)
	}
	return out, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*GatewayEvent, error) {
	if g.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	out := &GatewayEvent{ID: ev.ID, Type: string(ev.Type), Raw: payload}
	if strings.HasPrefix(out.Type, "customer.subscription.") && ev.Data != nil {
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription event: %w", err)
		}
		out.Subscription = normalizeStripeSubscription(&sub, ev.Data.Raw)
	}
	return out, nil
}

func normalizeStripeSubscription(sub *stripe.Subscription, raw []byte) *NormalizedSubscription {
	n := &NormalizedSubscription{
		WorkspaceID:            sub.Metadata["workspace_id"],
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		CurrentPeriodStart:     unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTime(sub.CurrentPeriodEnd),
		TrialEnd:               unixTime(sub.TrialEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayload:             raw,
	}
	if sub.Customer != nil {
		n.ProviderCustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		n.ProviderPriceID = price.ID
		if price.Recurring != nil {
			n.BillingInterval = string(price.Recurring.Interval)
		}
	}
	return n
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
