package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	BillingProviderStripe = "stripe"
)

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

// Gateway subscription states as reported by Stripe.
const (
	BillingStatusActive            = "active"
	BillingStatusTrialing          = "trialing"
	BillingStatusPastDue           = "past_due"
	BillingStatusCanceled          = "canceled"
	BillingStatusIncomplete        = "incomplete"
	BillingStatusIncompleteExpired = "incomplete_expired"
	BillingStatusUnpaid            = "unpaid"
	BillingStatusPaused            = "paused"
)

// BillingSubscription is the local mirror of a gateway subscription. The
// gateway stays authoritative; rows are rewritten on every sync.
type BillingSubscription struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	WorkspaceID            string         `gorm:"type:varchar(64);not null;index" json:"workspace_id"`
	Provider               string         `gorm:"type:varchar(20);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string         `gorm:"type:varchar(191);not null;index:ux_billing_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderCustomerID     string         `gorm:"type:varchar(191);not null;default:'';index" json:"provider_customer_id"`
	ProviderPriceID        string         `gorm:"type:varchar(191);not null;default:''" json:"provider_price_id"`
	InternalPlan           string         `gorm:"type:varchar(50);not null;default:'free'" json:"internal_plan"`
	BillingInterval        string         `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string         `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	CurrentPeriodStart     *time.Time     `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time     `json:"current_period_end,omitempty"`
	TrialEnd               *time.Time     `json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool           `gorm:"default:false" json:"cancel_at_period_end"`
	RawPayload             datatypes.JSON `json:"-"`
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the subscription grants its plan.
func (s *BillingSubscription) IsEntitling() bool {
	switch s.Status {
	case BillingStatusActive, BillingStatusTrialing, BillingStatusPastDue:
		return true
	}
	return false
}
