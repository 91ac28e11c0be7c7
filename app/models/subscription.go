package models

import "time"

// Subscription statuses mirror Stripe's vocabulary verbatim.
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

// Subscription is the local mirror of one Stripe subscription object.
// Rows are upserted keyed on StripeSubscriptionID and only ever mutated by
// the webhook reconciler. CustomerID references Customer.ID.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"stripe_subscription_id"`
	CustomerID           uint       `gorm:"not null;index:idx_subscriptions_customer_status,priority:1" json:"customer_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_customer_status,priority:2" json:"status"`
	Plan                 string     `gorm:"type:varchar(191);not null" json:"plan"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
