package models

import (
	"time"

	"gorm.io/datatypes"
)

// BillingProduct mirrors a gateway product for display.
type BillingProduct struct {
	ID                uint              `gorm:"primaryKey" json:"-"`
	Provider          string            `gorm:"type:varchar(20);not null;index:ux_billing_products_ref,unique,priority:1" json:"-"`
	ProviderProductID string            `gorm:"type:varchar(191);not null;index:ux_billing_products_ref,unique,priority:2" json:"id"`
	Name              string            `gorm:"type:varchar(200);not null" json:"name"`
	Description       string            `gorm:"type:text" json:"description"`
	Active            bool              `gorm:"not null;index" json:"active"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty"`
	Prices            []BillingPrice    `gorm:"foreignKey:ProviderProductID;references:ProviderProductID;constraint:-" json:"prices"`
	SyncedAt          time.Time         `json:"synced_at"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"-"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"-"`
}

// BillingPrice mirrors a gateway price. Interval is empty for one-time prices.
type BillingPrice struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_billing_prices_ref,unique,priority:1" json:"-"`
	ProviderPriceID   string    `gorm:"type:varchar(191);not null;index:ux_billing_prices_ref,unique,priority:2" json:"id"`
	ProviderProductID string    `gorm:"type:varchar(191);not null;index" json:"product_id"`
	Currency          string    `gorm:"type:varchar(3);not null" json:"currency"`
	UnitAmount        int64     `gorm:"not null;default:0" json:"unit_amount"`
	Interval          string    `gorm:"column:billing_interval;type:varchar(16);default:''" json:"interval,omitempty"`
	IntervalCount     int64     `gorm:"default:0" json:"interval_count,omitempty"`
	TrialPeriodDays   int64     `gorm:"default:0" json:"trial_period_days,omitempty"`
	Active            bool      `gorm:"not null;index" json:"active"`
	SyncedAt          time.Time `json:"synced_at"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"-"`
}
