package billing

import (
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/subsyncapp/subsync/app/models"
)

// PrincipalKind discriminates the two kinds of billing principals.
type PrincipalKind string

const (
	PrincipalUser         PrincipalKind = "user"
	PrincipalOrganization PrincipalKind = "organization"
)

// PrincipalRef is a tagged reference to a user or an organization. Using a
// discriminated reference instead of two nullable IDs removes any
// ambiguity about which column a lookup probes.
type PrincipalRef struct {
	Kind PrincipalKind
	ID   string
}

// UserRef builds a principal reference to a user.
func UserRef(id string) PrincipalRef {
	return PrincipalRef{Kind: PrincipalUser, ID: id}
}

// OrganizationRef builds a principal reference to an organization.
func OrganizationRef(id string) PrincipalRef {
	return PrincipalRef{Kind: PrincipalOrganization, ID: id}
}

// SubscriptionSnapshot is the normalized shape of one provider
// subscription state, extracted from a webhook payload.
type SubscriptionSnapshot struct {
	SubscriptionID     string
	CustomerID         string // Stripe customer ID
	Status             string
	PriceID            string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
}

// ActiveSubscription is the read-path result: the mirrored subscription
// row plus live plan metadata fetched from the provider for display.
type ActiveSubscription struct {
	Plan         *stripe.Plan         `json:"plan"`
	Subscription *models.Subscription `json:"subscription"`
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
}
