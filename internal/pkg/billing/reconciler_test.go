package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsyncapp/subsync/app/models"
	"github.com/subsyncapp/subsync/internal/pkg/stripeapi"
)

func stripeCustomerParams(metadata map[string]string) stripeapi.CustomerParams {
	return stripeapi.CustomerParams{
		Email:    "unlinked@example.com",
		Name:     "Unlinked Customer",
		Metadata: metadata,
	}
}

func subscriptionPayload(subID, custID, status string, periodStart, periodEnd int64, priceID string) json.RawMessage {
	payload := map[string]interface{}{
		"id":       subID,
		"customer": custID,
		"status":   status,
	}
	if periodStart > 0 {
		payload["current_period_start"] = periodStart
	}
	if periodEnd > 0 {
		payload["current_period_end"] = periodEnd
	}
	if priceID != "" {
		payload["items"] = map[string]interface{}{
			"data": []map[string]interface{}{
				{"price": map[string]interface{}{"id": priceID}},
			},
		}
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func TestParseSubscriptionEvent(t *testing.T) {
	raw := subscriptionPayload("sub_1", "cus_1", "Active", 1700000000, 1702592000, "price_basic")

	snap, err := ParseSubscriptionEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", snap.SubscriptionID)
	assert.Equal(t, "cus_1", snap.CustomerID)
	assert.Equal(t, "active", snap.Status)
	assert.Equal(t, "price_basic", snap.PriceID)
	require.NotNil(t, snap.CurrentPeriodStart)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *snap.CurrentPeriodStart)
	require.NotNil(t, snap.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), *snap.CurrentPeriodEnd)
}

func TestParseSubscriptionEventDefaults(t *testing.T) {
	snap, err := ParseSubscriptionEvent(subscriptionPayload("sub_1", "cus_1", "active", 0, 0, ""))
	require.NoError(t, err)
	assert.Equal(t, "unknown", snap.PriceID)
	assert.Nil(t, snap.CurrentPeriodStart)
	assert.Nil(t, snap.CurrentPeriodEnd)
}

func TestParseSubscriptionEventMissingIdentifiers(t *testing.T) {
	_, err := ParseSubscriptionEvent(json.RawMessage(`{"status":"active"}`))
	assert.Error(t, err)

	_, err = ParseSubscriptionEvent(json.RawMessage(`{"id":"sub_1"}`))
	assert.Error(t, err)
}

func TestApplySubscriptionSnapshotIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStripeClient())

	userID := "11111111-1111-4111-8111-111111111111"
	require.NoError(t, repo.CreateCustomer(&models.Customer{StripeCustomerID: "cus_1", UserID: &userID}))

	end := time.Unix(1702592000, 0).UTC()
	snap := SubscriptionSnapshot{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		Status:           models.BillingStatusActive,
		PriceID:          "price_basic",
		CurrentPeriodEnd: &end,
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.ApplySubscriptionSnapshot(context.Background(), snap))
	}

	repo.mu.Lock()
	subCount := len(repo.subs)
	repo.mu.Unlock()
	assert.Equal(t, 1, subCount, "replays must not create duplicate mirror rows")

	sub := repo.subscriptionByStripeID("sub_1")
	require.NotNil(t, sub)
	assert.Equal(t, models.BillingStatusActive, sub.Status)
	assert.Equal(t, "price_basic", sub.Plan)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, end, *sub.CurrentPeriodEnd)
	assert.True(t, repo.customerByStripeID("cus_1").IsActive)
}

// The mirror is last-write-wins with no ordering check, so a stale event
// arriving after a newer one overwrites it. Both directions are pinned
// here so a behavior change shows up in review.
func TestApplySubscriptionSnapshotLastWriteWins(t *testing.T) {
	older := SubscriptionSnapshot{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         models.BillingStatusTrialing,
		PriceID:        "price_basic",
	}
	newer := SubscriptionSnapshot{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         models.BillingStatusActive,
		PriceID:        "price_pro",
	}

	tests := []struct {
		name       string
		order      []SubscriptionSnapshot
		wantStatus string
		wantPlan   string
	}{
		{name: "in order", order: []SubscriptionSnapshot{older, newer}, wantStatus: models.BillingStatusActive, wantPlan: "price_pro"},
		{name: "out of order", order: []SubscriptionSnapshot{newer, older}, wantStatus: models.BillingStatusTrialing, wantPlan: "price_basic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, newFakeStripeClient())
			userID := "11111111-1111-4111-8111-111111111111"
			require.NoError(t, repo.CreateCustomer(&models.Customer{StripeCustomerID: "cus_1", UserID: &userID}))

			for _, snap := range tt.order {
				require.NoError(t, svc.ApplySubscriptionSnapshot(context.Background(), snap))
			}

			sub := repo.subscriptionByStripeID("sub_1")
			require.NotNil(t, sub)
			assert.Equal(t, tt.wantStatus, sub.Status)
			assert.Equal(t, tt.wantPlan, sub.Plan)
		})
	}
}

func TestApplySubscriptionSnapshotReconstructsCustomer(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		wantUser string
		wantOrg  string
	}{
		{
			name:     "user metadata",
			metadata: map[string]string{MetaUserID: "11111111-1111-4111-8111-111111111111"},
			wantUser: "11111111-1111-4111-8111-111111111111",
		},
		{
			name:     "organization metadata",
			metadata: map[string]string{MetaOrgID: "22222222-2222-4222-8222-222222222222"},
			wantOrg:  "22222222-2222-4222-8222-222222222222",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			client := newFakeStripeClient()
			svc := newTestService(repo, client)

			// Customer exists at Stripe but was never linked locally.
			_, err := client.CreateCustomer(context.Background(), stripeCustomerParams(tt.metadata))
			require.NoError(t, err)

			snap := SubscriptionSnapshot{
				SubscriptionID: "sub_1",
				CustomerID:     "cus_fake_1",
				Status:         models.BillingStatusActive,
				PriceID:        "price_basic",
			}
			require.NoError(t, svc.ApplySubscriptionSnapshot(context.Background(), snap))

			c := repo.customerByStripeID("cus_fake_1")
			require.NotNil(t, c, "customer must be reconstructed from stripe metadata")
			if tt.wantUser != "" {
				require.NotNil(t, c.UserID)
				assert.Equal(t, tt.wantUser, *c.UserID)
				assert.Nil(t, c.OrganizationID)
			} else {
				require.NotNil(t, c.OrganizationID)
				assert.Equal(t, tt.wantOrg, *c.OrganizationID)
				assert.Nil(t, c.UserID)
			}
			assert.True(t, c.IsActive)
			require.NotNil(t, repo.subscriptionByStripeID("sub_1"))
		})
	}
}

func TestApplySubscriptionSnapshotMissingMetadataIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeStripeClient()
	svc := newTestService(repo, client)

	_, err := client.CreateCustomer(context.Background(), stripeCustomerParams(nil))
	require.NoError(t, err)

	snap := SubscriptionSnapshot{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_fake_1",
		Status:         models.BillingStatusActive,
	}
	err = svc.ApplySubscriptionSnapshot(context.Background(), snap)
	require.ErrorIs(t, err, ErrIdentityMissing)
	assert.True(t, IsTerminalEventError(err))
	assert.Equal(t, 0, repo.customerCount())
	assert.Nil(t, repo.subscriptionByStripeID("sub_1"))
}

func TestApplySubscriptionSnapshotActiveFlag(t *testing.T) {
	tests := []struct {
		status     string
		wantActive bool
	}{
		{status: models.BillingStatusActive, wantActive: true},
		{status: models.BillingStatusTrialing, wantActive: true},
		{status: models.BillingStatusPastDue, wantActive: false},
		{status: models.BillingStatusCanceled, wantActive: false},
		{status: models.BillingStatusUnpaid, wantActive: false},
		{status: models.BillingStatusIncomplete, wantActive: false},
		{status: models.BillingStatusPaused, wantActive: false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, newFakeStripeClient())
			userID := "11111111-1111-4111-8111-111111111111"
			require.NoError(t, repo.CreateCustomer(&models.Customer{StripeCustomerID: "cus_1", UserID: &userID}))

			snap := SubscriptionSnapshot{
				SubscriptionID: "sub_1",
				CustomerID:     "cus_1",
				Status:         tt.status,
				PriceID:        "price_basic",
			}
			require.NoError(t, svc.ApplySubscriptionSnapshot(context.Background(), snap))
			assert.Equal(t, tt.wantActive, repo.customerByStripeID("cus_1").IsActive)
		})
	}
}

func TestApplySubscriptionDeleted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStripeClient())

	userID := "11111111-1111-4111-8111-111111111111"
	customer := &models.Customer{StripeCustomerID: "cus_1", UserID: &userID, IsActive: true}
	require.NoError(t, repo.CreateCustomer(customer))
	require.NoError(t, repo.UpsertSubscription(&models.Subscription{
		StripeSubscriptionID: "sub_1",
		CustomerID:           customer.ID,
		Status:               models.BillingStatusActive,
		Plan:                 "price_basic",
	}))

	snap := SubscriptionSnapshot{SubscriptionID: "sub_1", CustomerID: "cus_1"}
	require.NoError(t, svc.ApplySubscriptionDeleted(context.Background(), snap))

	sub := repo.subscriptionByStripeID("sub_1")
	require.NotNil(t, sub, "deletion keeps the mirror row as history")
	assert.Equal(t, models.BillingStatusCanceled, sub.Status)
	assert.False(t, repo.customerByStripeID("cus_1").IsActive)
}

func TestApplySubscriptionDeletedUnknownCustomer(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStripeClient())

	snap := SubscriptionSnapshot{SubscriptionID: "sub_1", CustomerID: "cus_missing"}
	err := svc.ApplySubscriptionDeleted(context.Background(), snap)
	require.ErrorIs(t, err, ErrUnknownCustomer)
	assert.True(t, IsTerminalEventError(err))
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStripeClient())

	in := WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       "customer.subscription.created",
		PayloadJSON:     `{"id":"evt_1"}`,
	}

	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, stored)
	assert.False(t, stored.Processed())

	require.NoError(t, svc.MarkWebhookProcessed(context.Background(), stored.ID, nil))

	created, stored, err = svc.RecordWebhookEvent(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, stored)
	assert.True(t, stored.Processed())
}

func TestRecordWebhookEventRequiresIdentifiers(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeStripeClient())

	_, _, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{ProviderEventID: "evt_1"})
	assert.Error(t, err)

	_, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{Provider: models.BillingProviderStripe})
	assert.Error(t, err)
}

func TestProcessedReflectsErrorState(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeStripeClient())

	_, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_2",
		EventType:       "customer.subscription.updated",
		PayloadJSON:     `{}`,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkWebhookProcessed(context.Background(), stored.ID, assert.AnError))

	_, stored, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_2",
	})
	require.NoError(t, err)
	assert.False(t, stored.Processed(), "a failed attempt must stay eligible for reprocessing")
}
