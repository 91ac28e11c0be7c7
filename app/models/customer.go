package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// Customer links a principal (user or organization, exactly one) to a
// Stripe customer record. IsActive is a derived cache of subscription
// state maintained exclusively by the webhook reconciler. Rows are created
// lazily and never deleted.
//
// UserID and OrganizationID hold principal UUIDs from the external auth
// subsystem. The unique indexes on both columns are load-bearing: they are
// what turns concurrent first-time linking into a duplicate-key error the
// service can recover from instead of a silent double insert.
type Customer struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	StripeCustomerID string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"stripe_customer_id"`
	UserID           *string   `gorm:"type:varchar(36);uniqueIndex" json:"user_id,omitempty"`
	OrganizationID   *string   `gorm:"type:varchar(36);uniqueIndex" json:"organization_id,omitempty"`
	IsActive         bool      `gorm:"default:false;index" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
