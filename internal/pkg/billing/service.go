package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/internal/pkg/env"
)

var (
	ErrGatewayNotConfigured     = errors.New("payment gateway is not configured")
	ErrWebhookNotConfigured     = errors.New("gateway webhook secret is not configured")
	ErrInvalidWebhookSignature  = errors.New("invalid gateway webhook signature")
	ErrCustomerNotFound         = errors.New("billing customer not found")
	ErrFreePriceNotConfigured   = errors.New("STRIPE_FREE_PRICE_ID is not configured")
	ErrMissingPriceID           = errors.New("price_id is required")
	ErrSubscriptionWithoutOwner = errors.New("subscription has no workspace")
)

// Config holds billing URLs and catalog settings.
type Config struct {
	FreePriceID     string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
	CatalogTTL      time.Duration
	Currency        string
}

// ConfigFromEnv reads the BILLING_* and STRIPE_* settings.
func ConfigFromEnv() Config {
	return Config{
		FreePriceID:     strings.TrimSpace(env.GetEnv("STRIPE_FREE_PRICE_ID", "")),
		SuccessURL:      env.GetEnv("BILLING_SUCCESS_URL", env.PublicURL("/billing/success?session_id={CHECKOUT_SESSION_ID}")),
		CancelURL:       env.GetEnv("BILLING_CANCEL_URL", env.PublicURL("/billing/cancel")),
		PortalReturnURL: env.GetEnv("BILLING_PORTAL_RETURN_URL", env.PublicURL("/billing")),
		CatalogTTL:      env.GetEnvMinutes("BILLING_CATALOG_TTL_MINUTES", 60),
		Currency:        strings.ToLower(env.GetEnv("BILLING_CURRENCY", "usd")),
	}
}

// Service provides gateway-backed billing operations plus provider-neutral
// subscription synchronization and plan reconciliation.
type Service struct {
	repo    Repository
	gateway Gateway
	cfg     Config
	now     func() time.Time
}

// NewService creates a billing service from an injected repository and gateway.
// gateway may be nil when no payment provider is configured.
func NewService(repo Repository, gateway Gateway, cfg Config) *Service {
	return &Service{repo: repo, gateway: gateway, cfg: cfg, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle and the
// Stripe settings in the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	var gateway Gateway
	if key := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")); key != "" {
		gateway = NewStripeGateway(key, env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
	}
	return NewService(NewRepository(db), gateway, ConfigFromEnv())
}

func (s *Service) requireGateway() error {
	if s.gateway == nil {
		return ErrGatewayNotConfigured
	}
	return nil
}

// ResolveCustomer finds or creates the gateway customer of a workspace. A
// placeholder row claims the (workspace, gateway) slot first; only the request
// that replaces the placeholder stores its gateway id.
func (s *Service) ResolveCustomer(ctx context.Context, workspaceID, email string) (*models.BillingCustomer, error) {
	if err := s.requireGateway(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(workspaceID) == "" {
		return nil, errors.New("workspace_id is required")
	}
	gateway := s.gateway.Name()

	customer, err := s.repo.EnsurePendingCustomer(workspaceID, gateway, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("claim billing customer: %w", err)
	}
	if !customer.IsPending() {
		return customer, nil
	}

	gatewayID, err := s.gateway.CreateCustomer(ctx, CustomerParams{WorkspaceID: workspaceID, Email: email})
	if err != nil {
		return nil, err
	}

	replaced, err := s.repo.ReplacePendingCustomer(customer.ID, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("store billing customer: %w", err)
	}
	if !replaced {
		log.Infof("[Billing] customer for workspace %s was resolved concurrently", workspaceID)
	}
	return s.repo.GetCustomer(workspaceID, gateway)
}

// CheckoutRequest is the client input of CreateCheckout.
type CheckoutRequest struct {
	PriceID    string `json:"price_id"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	TrialDays  int64  `json:"trial_days,omitempty"`
}

// CreateCheckout starts a subscription checkout for the workspace.
func (s *Service) CreateCheckout(ctx context.Context, workspaceID, email string, req CheckoutRequest) (*CheckoutSession, error) {
	if strings.TrimSpace(req.PriceID) == "" {
		return nil, ErrMissingPriceID
	}
	customer, err := s.ResolveCustomer(ctx, workspaceID, email)
	if err != nil {
		return nil, err
	}
	return s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		WorkspaceID: workspaceID,
		CustomerID:  customer.GatewayCustomerID,
		PriceID:     strings.TrimSpace(req.PriceID),
		SuccessURL:  firstNonEmpty(req.SuccessURL, s.cfg.SuccessURL),
		CancelURL:   firstNonEmpty(req.CancelURL, s.cfg.CancelURL),
		TrialDays:   req.TrialDays,
	})
}

// CreatePortal opens a billing portal session for the workspace.
func (s *Service) CreatePortal(ctx context.Context, workspaceID, email, returnURL string) (string, error) {
	customer, err := s.ResolveCustomer(ctx, workspaceID, email)
	if err != nil {
		return "", err
	}
	return s.gateway.CreatePortalSession(ctx, customer.GatewayCustomerID, firstNonEmpty(returnURL, s.cfg.PortalReturnURL))
}

// Catalog returns active products and prices, refreshing the local mirror
// when it is empty or older than the configured TTL.
func (s *Service) Catalog(ctx context.Context) ([]models.BillingProduct, error) {
	provider := models.BillingProviderStripe
	if s.gateway != nil {
		provider = s.gateway.Name()
		syncedAt, err := s.repo.CatalogSyncedAt(provider)
		if err != nil {
			return nil, err
		}
		if syncedAt == nil || s.now().Sub(*syncedAt) > s.cfg.CatalogTTL {
			if err := s.RefreshCatalog(ctx); err != nil {
				if syncedAt == nil {
					return nil, err
				}
				log.Warnf("[Billing] catalog refresh failed, serving cached catalog: %v", err)
			}
		}
	}
	return s.repo.ListCatalog(provider)
}

// RefreshCatalog pulls products and prices from the gateway concurrently and
// rewrites the mirror.
func (s *Service) RefreshCatalog(ctx context.Context) error {
	if err := s.requireGateway(); err != nil {
		return err
	}
	var (
		products []models.BillingProduct
		prices   []models.BillingPrice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.gateway.ListProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		prices, err = s.gateway.ListPrices(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.repo.ReplaceCatalog(s.gateway.Name(), products, prices, s.now()); err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	log.Infof("[Billing] catalog refreshed: %d products, %d prices", len(products), len(prices))
	return nil
}

// CreateFreeSubscription subscribes the workspace to the zero-cost price. A
// workspace that already holds an entitling subscription gets that one back.
func (s *Service) CreateFreeSubscription(ctx context.Context, workspaceID, email string) (*models.BillingSubscription, bool, error) {
	if err := s.requireGateway(); err != nil {
		return nil, false, err
	}
	if s.cfg.FreePriceID == "" {
		return nil, false, ErrFreePriceNotConfigured
	}

	subs, err := s.repo.ListSubscriptionsByWorkspace(workspaceID)
	if err != nil {
		return nil, false, err
	}
	for i := range subs {
		if subs[i].IsEntitling() {
			return &subs[i], false, nil
		}
	}

	customer, err := s.ResolveCustomer(ctx, workspaceID, email)
	if err != nil {
		return nil, false, err
	}
	created, err := s.gateway.CreateSubscription(ctx, SubscriptionParams{
		WorkspaceID:    workspaceID,
		CustomerID:     customer.GatewayCustomerID,
		PriceID:        s.cfg.FreePriceID,
		IdempotencyKey: freeSubscriptionKey(workspaceID, subs),
	})
	if err != nil {
		return nil, false, err
	}
	created.WorkspaceID = workspaceID
	if created.ProviderPriceID == "" {
		created.ProviderPriceID = s.cfg.FreePriceID
	}

	sub, _, err := s.SyncSubscription(ctx, *created)
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

// freeSubscriptionKey is stable while no new subscription has been mirrored,
// so concurrent attempts collapse into one, but changes once an earlier
// subscription ended and was synced, so a re-subscribe is not answered from
// the gateway's idempotency cache.
func freeSubscriptionKey(workspaceID string, mirrored []models.BillingSubscription) string {
	return fmt.Sprintf("free-subscription-%s-%d", workspaceID, len(mirrored))
}

// ListSubscriptions returns the workspace's mirrored subscriptions.
func (s *Service) ListSubscriptions(workspaceID string) ([]models.BillingSubscription, error) {
	return s.repo.ListSubscriptionsByWorkspace(workspaceID)
}

// ResolveMappedPlan resolves a gateway price to an internal plan.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPriceID string) (string, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPriceID)
	if p == "" || ref == "" {
		return models.PlanFree, gorm.ErrRecordNotFound
	}
	m, err := s.repo.FindActivePlanMapping(p, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PlanFree, err
		}
		return "", err
	}
	return normalizePlan(m.InternalPlan), nil
}

// SyncSubscription upserts provider subscription data and reconciles the
// workspace plan.
func (s *Service) SyncSubscription(ctx context.Context, in NormalizedSubscription) (*models.BillingSubscription, string, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" || strings.TrimSpace(in.ProviderSubscriptionID) == "" {
		return nil, "", errors.New("provider and provider_subscription_id are required")
	}

	workspaceID := strings.TrimSpace(in.WorkspaceID)
	if workspaceID == "" && in.ProviderCustomerID != "" {
		if c, err := s.repo.GetCustomerByGatewayID(provider, in.ProviderCustomerID); err == nil {
			workspaceID = c.WorkspaceID
		}
	}
	if workspaceID == "" {
		return nil, "", ErrSubscriptionWithoutOwner
	}

	status := strings.ToLower(strings.TrimSpace(in.Status))
	if status == "" {
		status = models.BillingStatusIncomplete
	}

	internalPlan, err := s.ResolveMappedPlan(ctx, provider, in.ProviderPriceID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}
	if internalPlan == "" {
		internalPlan = models.PlanFree
	}

	sub := &models.BillingSubscription{
		WorkspaceID:            workspaceID,
		Provider:               provider,
		ProviderSubscriptionID: strings.TrimSpace(in.ProviderSubscriptionID),
		ProviderCustomerID:     strings.TrimSpace(in.ProviderCustomerID),
		ProviderPriceID:        strings.TrimSpace(in.ProviderPriceID),
		InternalPlan:           internalPlan,
		BillingInterval:        normalizeInterval(in.BillingInterval),
		Status:                 status,
		CurrentPeriodStart:     in.CurrentPeriodStart,
		CurrentPeriodEnd:       in.CurrentPeriodEnd,
		TrialEnd:               in.TrialEnd,
		CancelAtPeriodEnd:      in.CancelAtPeriodEnd,
		RawPayload:             datatypes.JSON(in.RawPayload),
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, "", err
	}

	effectivePlan, err := s.ReconcileWorkspacePlan(ctx, workspaceID)
	if err != nil {
		return sub, "", err
	}
	return sub, effectivePlan, nil
}

// ReconcileWorkspacePlan computes and writes the best effective plan for a workspace.
func (s *Service) ReconcileWorkspacePlan(ctx context.Context, workspaceID string) (string, error) {
	_ = ctx
	if workspaceID == "" {
		return "", errors.New("workspace_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByWorkspace(workspaceID)
	if err != nil {
		return "", err
	}

	best := models.PlanFree
	for _, sub := range subs {
		if !isEntitlingStatus(sub.Status) {
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	ws, err := s.repo.GetOrCreateWorkspace(workspaceID)
	if err != nil {
		return "", err
	}
	if normalizePlan(ws.Plan) == best {
		return best, nil
	}
	if err := s.repo.UpdateWorkspacePlan(workspaceID, best); err != nil {
		return "", err
	}
	log.Infof("[Billing] workspace %s plan %s -> %s", workspaceID, ws.EffectivePlan(), best)
	return best, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256(in.Payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		Payload:         datatypes.JSON(in.Payload),
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
