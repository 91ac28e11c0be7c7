package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/subsyncapp/subsync/app/models"
)

// subscriptionEvent is the slice of a Stripe subscription payload the
// reconciler needs. Parsed from the raw event JSON; created and updated
// events both carry a full snapshot in this shape.
type subscriptionEvent struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// ParseSubscriptionEvent extracts a normalized snapshot from the raw
// object of a customer.subscription.* event.
func ParseSubscriptionEvent(raw json.RawMessage) (SubscriptionSnapshot, error) {
	var ev subscriptionEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return SubscriptionSnapshot{}, fmt.Errorf("decode subscription payload: %w", err)
	}
	if ev.ID == "" || ev.Customer == "" {
		return SubscriptionSnapshot{}, errors.New("subscription payload missing id or customer")
	}

	snap := SubscriptionSnapshot{
		SubscriptionID: ev.ID,
		CustomerID:     ev.Customer,
		Status:         NormalizeStatus(ev.Status),
		PriceID:        "unknown",
	}
	if len(ev.Items.Data) > 0 && ev.Items.Data[0].Price.ID != "" {
		snap.PriceID = ev.Items.Data[0].Price.ID
	}
	if ev.CurrentPeriodStart > 0 {
		t := time.Unix(ev.CurrentPeriodStart, 0).UTC()
		snap.CurrentPeriodStart = &t
	}
	if ev.CurrentPeriodEnd > 0 {
		t := time.Unix(ev.CurrentPeriodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &t
	}
	return snap, nil
}

// ApplySubscriptionSnapshot handles subscription created and updated
// events. Both carry a full snapshot, so one idempotent code path serves
// both: ensure the local customer exists (reconstructing it from Stripe
// metadata if needed), upsert the mirrored subscription keyed on the
// Stripe subscription ID, and recompute the customer's active flag.
//
// Replays converge to the same state. Ordering across events is
// last-write-wins; there is no sequence check against Stripe's own event
// ordering, so a stale update arriving late overwrites a newer one.
func (s *Service) ApplySubscriptionSnapshot(ctx context.Context, snap SubscriptionSnapshot) error {
	customer, err := s.repo.GetCustomerByStripeID(snap.CustomerID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		customer, err = s.reconstructCustomer(ctx, snap.CustomerID)
		if err != nil {
			return err
		}
	}

	if err := s.repo.UpsertSubscription(&models.Subscription{
		StripeSubscriptionID: snap.SubscriptionID,
		CustomerID:           customer.ID,
		Status:               snap.Status,
		Plan:                 snap.PriceID,
		CurrentPeriodStart:   snap.CurrentPeriodStart,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
	}); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", snap.SubscriptionID, err)
	}

	if err := s.repo.SetCustomerActive(customer.ID, IsEntitling(snap.Status)); err != nil {
		return fmt.Errorf("update customer active flag: %w", err)
	}

	log.Printf("billing: subscription %s upserted for stripe customer %s (status=%s)",
		snap.SubscriptionID, snap.CustomerID, snap.Status)
	return nil
}

// ApplySubscriptionDeleted handles subscription deleted events: the
// mirrored row keeps its history with the event's status (typically
// canceled) and the customer's active flag drops to false. An unknown
// customer is a terminal gap, not a retryable failure.
func (s *Service) ApplySubscriptionDeleted(ctx context.Context, snap SubscriptionSnapshot) error {
	_ = ctx
	customer, err := s.repo.GetCustomerByStripeID(snap.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownCustomer, snap.CustomerID)
		}
		return err
	}

	status := snap.Status
	if status == "" {
		status = models.BillingStatusCanceled
	}
	if err := s.repo.UpdateSubscriptionStatus(snap.SubscriptionID, status); err != nil {
		return fmt.Errorf("update subscription %s status: %w", snap.SubscriptionID, err)
	}
	if err := s.repo.SetCustomerActive(customer.ID, false); err != nil {
		return fmt.Errorf("update customer active flag: %w", err)
	}

	log.Printf("billing: subscription %s deleted for stripe customer %s", snap.SubscriptionID, snap.CustomerID)
	return nil
}

// reconstructCustomer catches the mirror up when a webhook references a
// Stripe customer created outside this service: the customer's metadata is
// read back from Stripe and the embedded principal reference rebuilt into
// a local row. Metadata carrying neither reference is a terminal data
// quality gap.
func (s *Service) reconstructCustomer(ctx context.Context, stripeCustomerID string) (*models.Customer, error) {
	sc, err := s.stripe.GetCustomer(ctx, stripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe customer %s: %w", stripeCustomerID, err)
	}

	var metadata map[string]string
	if sc != nil && !sc.Deleted {
		metadata = sc.Metadata
	}
	userID := metadata[MetaUserID]
	orgID := metadata[MetaOrgID]
	if userID == "" && orgID == "" {
		return nil, fmt.Errorf("%w: %s", ErrIdentityMissing, stripeCustomerID)
	}

	customer := &models.Customer{StripeCustomerID: stripeCustomerID}
	var ref PrincipalRef
	if userID != "" {
		customer.UserID = &userID
		ref = UserRef(userID)
	} else {
		customer.OrganizationID = &orgID
		ref = OrganizationRef(orgID)
	}

	if err := s.repo.CreateCustomer(customer); err != nil {
		// A concurrent event for the same customer may have inserted first.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.repo.GetCustomerByPrincipal(ref)
		}
		return nil, err
	}

	log.Printf("billing: reconstructed customer for stripe customer %s (%s=%s)", stripeCustomerID, ref.Kind, ref.ID)
	return customer, nil
}

// RecordWebhookEvent persists webhook payloads idempotently, keyed on the
// provider event ID.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	if in.Provider == "" {
		return false, nil, errors.New("provider is required")
	}
	if in.ProviderEventID == "" {
		return false, nil, errors.New("provider event id is required")
	}

	event := &models.WebhookEvent{
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
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
