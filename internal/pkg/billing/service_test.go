package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/internal/pkg/database"
)

type fakeGateway struct {
	customers     atomic.Int64
	subscriptions atomic.Int64
	catalogCalls  atomic.Int64
	products      []models.BillingProduct
	prices        []models.BillingPrice
	event         *GatewayEvent
	listErr       error

	mu               sync.Mutex
	subscriptionKeys []string
}

func (f *fakeGateway) Name() string { return models.BillingProviderStripe }

func (f *fakeGateway) CreateCustomer(_ context.Context, params CustomerParams) (string, error) {
	n := f.customers.Add(1)
	time.Sleep(5 * time.Millisecond)
	return fmt.Sprintf("cus_%s_%d", params.WorkspaceID, n), nil
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, params CheckoutParams) (*CheckoutSession, error) {
	return &CheckoutSession{ID: "cs_1", URL: "https://checkout.example.com/" + params.CustomerID + "?price=" + params.PriceID}, nil
}

func (f *fakeGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.example.com/" + customerID + "?return=" + returnURL, nil
}

func (f *fakeGateway) CreateSubscription(_ context.Context, params SubscriptionParams) (*NormalizedSubscription, error) {
	n := f.subscriptions.Add(1)
	f.mu.Lock()
	f.subscriptionKeys = append(f.subscriptionKeys, params.IdempotencyKey)
	f.mu.Unlock()
	return &NormalizedSubscription{
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: fmt.Sprintf("sub_%d", n),
		ProviderCustomerID:     params.CustomerID,
		ProviderPriceID:        params.PriceID,
		BillingInterval:        "month",
		Status:                 models.BillingStatusActive,
	}, nil
}

func (f *fakeGateway) ListProducts(context.Context) ([]models.BillingProduct, error) {
	f.catalogCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.BillingProduct, len(f.products))
	copy(out, f.products)
	return out, nil
}

func (f *fakeGateway) ListPrices(context.Context) ([]models.BillingPrice, error) {
	out := make([]models.BillingPrice, len(f.prices))
	copy(out, f.prices)
	return out, nil
}

func (f *fakeGateway) ParseWebhook(payload []byte, signature string) (*GatewayEvent, error) {
	if signature != "valid" {
		return nil, ErrInvalidWebhookSignature
	}
	return f.event, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestService(t *testing.T, gw *fakeGateway) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewService(NewRepository(db), gw, Config{
		FreePriceID:     "price_free",
		SuccessURL:      "https://app.example.com/ok",
		CancelURL:       "https://app.example.com/cancel",
		PortalReturnURL: "https://app.example.com/billing",
		CatalogTTL:      time.Hour,
	}), db
}

func TestResolveCustomer_ConcurrentCallsLeaveOneRow(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)

	const callers = 2
	results := make([]*models.BillingCustomer, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ResolveCustomer(context.Background(), "ws-1", "a@example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.False(t, results[i].IsPending())
	}
	assert.Equal(t, results[0].GatewayCustomerID, results[1].GatewayCustomerID)

	var count int64
	require.NoError(t, db.Model(&models.BillingCustomer{}).Where("workspace_id = ?", "ws-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveCustomer_ReusesExisting(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)

	first, err := svc.ResolveCustomer(context.Background(), "ws-1", "a@example.com")
	require.NoError(t, err)
	second, err := svc.ResolveCustomer(context.Background(), "ws-1", "a@example.com")
	require.NoError(t, err)

	assert.Equal(t, first.GatewayCustomerID, second.GatewayCustomerID)
	assert.Equal(t, int64(1), gw.customers.Load())
}

func TestResolveCustomer_NoGateway(t *testing.T) {
	svc := NewService(NewRepository(newTestDB(t)), nil, Config{})
	_, err := svc.ResolveCustomer(context.Background(), "ws-1", "")
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
}

func TestCreateCheckoutAndPortal(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{})

	_, err := svc.CreateCheckout(context.Background(), "ws-1", "a@example.com", CheckoutRequest{})
	assert.ErrorIs(t, err, ErrMissingPriceID)

	session, err := svc.CreateCheckout(context.Background(), "ws-1", "a@example.com", CheckoutRequest{PriceID: "price_pro"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Contains(t, session.URL, "price=price_pro")

	url, err := svc.CreatePortal(context.Background(), "ws-1", "a@example.com", "")
	require.NoError(t, err)
	assert.Contains(t, url, "return=https://app.example.com/billing")
}

func TestCreateFreeSubscription_Idempotent(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)

	sub, created, err := svc.CreateFreeSubscription(context.Background(), "ws-1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "price_free", sub.ProviderPriceID)
	assert.Equal(t, "ws-1", sub.WorkspaceID)

	again, created, err := svc.CreateFreeSubscription(context.Background(), "ws-1", "a@example.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, int64(1), gw.subscriptions.Load())

	var ws models.Workspace
	require.NoError(t, db.First(&ws, "id = ?", "ws-1").Error)
	assert.Equal(t, models.PlanFree, ws.Plan)
}

func TestCreateFreeSubscription_AfterCancellation(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	first, created, err := svc.CreateFreeSubscription(ctx, "ws-1", "a@example.com")
	require.NoError(t, err)
	require.True(t, created)

	_, _, err = svc.SyncSubscription(ctx, NormalizedSubscription{
		WorkspaceID:            "ws-1",
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: first.ProviderSubscriptionID,
		ProviderPriceID:        "price_free",
		Status:                 models.BillingStatusCanceled,
	})
	require.NoError(t, err)

	second, created, err := svc.CreateFreeSubscription(ctx, "ws-1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ProviderSubscriptionID, second.ProviderSubscriptionID)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Len(t, gw.subscriptionKeys, 2)
	assert.NotEqual(t, gw.subscriptionKeys[0], gw.subscriptionKeys[1])
	for _, key := range gw.subscriptionKeys {
		assert.Contains(t, key, "ws-1")
	}
}

func TestFreeSubscriptionKey(t *testing.T) {
	none := freeSubscriptionKey("ws-1", nil)
	assert.Equal(t, none, freeSubscriptionKey("ws-1", []models.BillingSubscription{}))
	assert.NotEqual(t, none, freeSubscriptionKey("ws-1", []models.BillingSubscription{{Status: models.BillingStatusCanceled}}))
	assert.NotEqual(t, none, freeSubscriptionKey("ws-2", nil))
}

func TestSyncSubscription_ReconcilesPlan(t *testing.T) {
	svc, db := newTestService(t, &fakeGateway{})
	require.NoError(t, db.Create(&models.BillingPlanMapping{
		Provider: models.BillingProviderStripe, ProviderPriceID: "price_pro", InternalPlan: models.PlanPro, IsActive: true,
	}).Error)

	_, plan, err := svc.SyncSubscription(context.Background(), NormalizedSubscription{
		WorkspaceID:            "ws-1",
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: "sub_pro",
		ProviderPriceID:        "price_pro",
		Status:                 models.BillingStatusActive,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, plan)

	_, plan, err = svc.SyncSubscription(context.Background(), NormalizedSubscription{
		WorkspaceID:            "ws-1",
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: "sub_pro",
		ProviderPriceID:        "price_pro",
		Status:                 models.BillingStatusCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, plan)

	subs, err := svc.ListSubscriptions("ws-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, models.BillingStatusCanceled, subs[0].Status)
}

func TestSyncSubscription_ResolvesWorkspaceFromCustomer(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{})
	customer, err := svc.ResolveCustomer(context.Background(), "ws-9", "")
	require.NoError(t, err)

	sub, _, err := svc.SyncSubscription(context.Background(), NormalizedSubscription{
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: "sub_x",
		ProviderCustomerID:     customer.GatewayCustomerID,
		Status:                 models.BillingStatusTrialing,
	})
	require.NoError(t, err)
	assert.Equal(t, "ws-9", sub.WorkspaceID)

	_, _, err = svc.SyncSubscription(context.Background(), NormalizedSubscription{
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: "sub_orphan",
		ProviderCustomerID:     "cus_unknown",
	})
	assert.ErrorIs(t, err, ErrSubscriptionWithoutOwner)
}

func TestCatalog_RefreshesWhenStale(t *testing.T) {
	gw := &fakeGateway{
		products: []models.BillingProduct{
			{ProviderProductID: "prod_pro", Name: "Pro", Active: true},
			{ProviderProductID: "prod_biz", Name: "Business", Active: true},
		},
		prices: []models.BillingPrice{
			{ProviderPriceID: "price_pro_m", ProviderProductID: "prod_pro", Currency: "usd", UnitAmount: 1900, Interval: "month", Active: true},
			{ProviderPriceID: "price_biz_m", ProviderProductID: "prod_biz", Currency: "usd", UnitAmount: 9900, Interval: "month", Active: true},
		},
	}
	svc, _ := newTestService(t, gw)

	products, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Business", products[0].Name)
	require.Len(t, products[0].Prices, 1)
	assert.Equal(t, int64(9900), products[0].Prices[0].UnitAmount)

	_, err = svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), gw.catalogCalls.Load(), "fresh mirror must not hit the gateway")

	// Business disappears upstream and the mirror goes stale.
	gw.products = gw.products[:1]
	gw.prices = gw.prices[:1]
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	products, err = svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Pro", products[0].Name)
}

func TestCatalog_ServesCacheWhenRefreshFails(t *testing.T) {
	gw := &fakeGateway{products: []models.BillingProduct{{ProviderProductID: "prod_pro", Name: "Pro", Active: true}}}
	svc, _ := newTestService(t, gw)
	_, err := svc.Catalog(context.Background())
	require.NoError(t, err)

	gw.listErr = errors.New("stripe down")
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	products, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestHandleGatewayWebhook(t *testing.T) {
	gw := &fakeGateway{}
	svc, db := newTestService(t, gw)
	require.NoError(t, db.Create(&models.BillingPlanMapping{
		Provider: models.BillingProviderStripe, ProviderPriceID: "price_biz", InternalPlan: models.PlanBusiness, IsActive: true,
	}).Error)

	gw.event = &GatewayEvent{
		ID:   "evt_1",
		Type: "customer.subscription.updated",
		Subscription: &NormalizedSubscription{
			WorkspaceID:            "ws-1",
			Provider:               models.BillingProviderStripe,
			ProviderSubscriptionID: "sub_1",
			ProviderPriceID:        "price_biz",
			Status:                 models.BillingStatusActive,
		},
		Raw: []byte(`{"id":"evt_1"}`),
	}

	_, err := svc.HandleGatewayWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "bogus")
	assert.ErrorIs(t, err, ErrInvalidWebhookSignature)

	out, err := svc.HandleGatewayWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "valid")
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, models.PlanBusiness, out.Plan)

	out, err = svc.HandleGatewayWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "valid")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)

	var events int64
	require.NoError(t, db.Model(&models.BillingWebhookEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}
