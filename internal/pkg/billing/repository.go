package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/MediaDash/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	EnsurePendingCustomer(workspaceID, gateway, email string) (*models.BillingCustomer, error)
	ReplacePendingCustomer(id uint, gatewayCustomerID string) (bool, error)
	GetCustomer(workspaceID, gateway string) (*models.BillingCustomer, error)
	GetCustomerByGatewayID(gateway, gatewayCustomerID string) (*models.BillingCustomer, error)
	FindActivePlanMapping(provider, providerPriceID string) (*models.BillingPlanMapping, error)
	UpsertSubscription(sub *models.BillingSubscription) error
	ListSubscriptionsByWorkspace(workspaceID string) ([]models.BillingSubscription, error)
	GetOrCreateWorkspace(workspaceID string) (*models.Workspace, error)
	UpdateWorkspacePlan(workspaceID, plan string) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	ReplaceCatalog(provider string, products []models.BillingProduct, prices []models.BillingPrice, syncedAt time.Time) error
	ListCatalog(provider string) ([]models.BillingProduct, error)
	CatalogSyncedAt(provider string) (*time.Time, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// EnsurePendingCustomer inserts a placeholder customer unless one exists for
// (workspace, gateway) and returns the stored row.
func (r *gormRepository) EnsurePendingCustomer(workspaceID, gateway, email string) (*models.BillingCustomer, error) {
	customer := &models.BillingCustomer{
		WorkspaceID:       workspaceID,
		GatewayName:       gateway,
		GatewayCustomerID: models.PendingCustomerID(workspaceID),
		BillingEmail:      email,
		DefaultCurrency:   "usd",
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "workspace_id"},
			{Name: "gateway_name"},
		},
		DoNothing: true,
	}).Create(customer).Error; err != nil {
		return nil, err
	}
	return r.GetCustomer(workspaceID, gateway)
}

// ReplacePendingCustomer swaps the placeholder for the real gateway id. It
// returns false when the row no longer holds a placeholder.
func (r *gormRepository) ReplacePendingCustomer(id uint, gatewayCustomerID string) (bool, error) {
	tx := r.db.Model(&models.BillingCustomer{}).
		Where("id = ? AND gateway_customer_id LIKE ?", id, models.PendingCustomerPrefix+"%").
		Update("gateway_customer_id", gatewayCustomerID)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) GetCustomer(workspaceID, gateway string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	if err := r.db.Where("workspace_id = ? AND gateway_name = ?", workspaceID, gateway).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) GetCustomerByGatewayID(gateway, gatewayCustomerID string) (*models.BillingCustomer, error) {
	var c models.BillingCustomer
	if err := r.db.Where("gateway_name = ? AND gateway_customer_id = ?", gateway, gatewayCustomerID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPriceID string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("provider = ? AND provider_price_id = ? AND is_active = ?", provider, providerPriceID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.BillingSubscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"workspace_id",
			"provider_customer_id",
			"provider_price_id",
			"internal_plan",
			"billing_interval",
			"status",
			"current_period_start",
			"current_period_end",
			"trial_end",
			"cancel_at_period_end",
			"raw_payload",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) ListSubscriptionsByWorkspace(workspaceID string) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("workspace_id = ?", workspaceID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) GetOrCreateWorkspace(workspaceID string) (*models.Workspace, error) {
	return models.GetOrCreateWorkspace(r.db, workspaceID, "")
}

func (r *gormRepository) UpdateWorkspacePlan(workspaceID, plan string) error {
	return r.db.Model(&models.Workspace{}).Where("id = ?", workspaceID).Update("plan", plan).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// ReplaceCatalog upserts the given products and prices and deactivates every
// row of provider that was not part of this sync.
func (r *gormRepository) ReplaceCatalog(provider string, products []models.BillingProduct, prices []models.BillingPrice, syncedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range products {
			products[i].Provider = provider
			products[i].SyncedAt = syncedAt
			products[i].Prices = nil
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "provider"}, {Name: "provider_product_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "description", "active", "metadata", "synced_at", "updated_at",
				}),
			}).Create(&products[i]).Error; err != nil {
				return err
			}
		}
		for i := range prices {
			prices[i].Provider = provider
			prices[i].SyncedAt = syncedAt
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "provider"}, {Name: "provider_price_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"provider_product_id", "currency", "unit_amount", "billing_interval", "interval_count",
					"trial_period_days", "active", "synced_at", "updated_at",
				}),
			}).Create(&prices[i]).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.BillingProduct{}).
			Where("provider = ? AND synced_at < ?", provider, syncedAt).
			Updates(map[string]interface{}{"active": false, "synced_at": syncedAt}).Error; err != nil {
			return err
		}
		return tx.Model(&models.BillingPrice{}).
			Where("provider = ? AND synced_at < ?", provider, syncedAt).
			Updates(map[string]interface{}{"active": false, "synced_at": syncedAt}).Error
	})
}

// ListCatalog returns active products with their active prices.
func (r *gormRepository) ListCatalog(provider string) ([]models.BillingProduct, error) {
	var products []models.BillingProduct
	err := r.db.
		Preload("Prices", "active = ? AND provider = ?", true, provider).
		Where("provider = ? AND active = ?", provider, true).
		Order("name ASC").
		Find(&products).Error
	return products, err
}

// CatalogSyncedAt returns the time of the last catalog sync, nil if never synced.
func (r *gormRepository) CatalogSyncedAt(provider string) (*time.Time, error) {
	var product models.BillingProduct
	err := r.db.Where("provider = ?", provider).Order("synced_at DESC").First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product.SyncedAt, nil
}
