package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// PendingCustomerPrefix marks a customer row whose gateway object does not exist yet.
const PendingCustomerPrefix = "pending_"

// BillingCustomer links a workspace to its customer object at a payment gateway.
type BillingCustomer struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	WorkspaceID       string            `gorm:"type:varchar(64);not null;index:ux_billing_customers_workspace_gateway,unique,priority:1" json:"workspace_id"`
	GatewayName       string            `gorm:"type:varchar(20);not null;index:ux_billing_customers_workspace_gateway,unique,priority:2" json:"gateway_name"`
	GatewayCustomerID string            `gorm:"type:varchar(191);not null;index" json:"gateway_customer_id"`
	BillingEmail      string            `gorm:"type:varchar(200);default:''" json:"billing_email"`
	DefaultCurrency   string            `gorm:"type:varchar(3);default:'usd'" json:"default_currency"`
	Metadata          datatypes.JSONMap `json:"metadata"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// PendingCustomerID returns the placeholder gateway id for a workspace.
func PendingCustomerID(workspaceID string) string {
	return PendingCustomerPrefix + workspaceID
}

// IsPending reports whether the gateway customer has not been created yet.
func (c *BillingCustomer) IsPending() bool {
	return c == nil || strings.HasPrefix(c.GatewayCustomerID, PendingCustomerPrefix)
}
