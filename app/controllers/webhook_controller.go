package controllers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/subsyncapp/subsync/app/models"
	"github.com/subsyncapp/subsync/internal/pkg/billing"
	"github.com/subsyncapp/subsync/internal/pkg/stripeapi"
)

// Stripe event types the reconciler acts on. Everything else is recorded
// and acknowledged so new provider event types never fail deliveries.
const (
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// WebhookController receives Stripe webhook deliveries. There is no
// session auth on this path; authenticity comes from the payload
// signature, which is checked before anything else happens.
type WebhookController struct {
	svc    *billing.Service
	stripe stripeapi.Client
}

// NewWebhookController creates a webhook controller around an injected
// service and Stripe client.
func NewWebhookController(svc *billing.Service, client stripeapi.Client) *WebhookController {
	return &WebhookController{svc: svc, stripe: client}
}

// HandleStripeWebhook verifies, records and applies one event delivery.
// Signature failures and terminal data gaps are not retried; everything
// else that fails returns 5xx so Stripe redelivers.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	// Verification comes first: an unverified payload must never influence
	// state, so nothing is parsed or persisted before this point.
	event, err := wc.stripe.ConstructEvent(rawBody, signature)
	if err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	created, stored, err := wc.svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// A redelivery of an event that already processed cleanly is
	// acknowledged without reprocessing. Failed attempts are retried.
	if !created && stored.Processed() {
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	var procErr error
	switch string(event.Type) {
	case eventSubscriptionCreated, eventSubscriptionUpdated:
		// Created and updated both carry a full snapshot; one upsert path
		// serves both.
		var snap billing.SubscriptionSnapshot
		snap, procErr = billing.ParseSubscriptionEvent(event.Data.Raw)
		if procErr == nil {
			procErr = wc.svc.ApplySubscriptionSnapshot(ctx, snap)
		}
	case eventSubscriptionDeleted:
		var snap billing.SubscriptionSnapshot
		snap, procErr = billing.ParseSubscriptionEvent(event.Data.Raw)
		if procErr == nil {
			procErr = wc.svc.ApplySubscriptionDeleted(ctx, snap)
		}
	default:
		log.Printf("webhook: unhandled event type %s (%s)", event.Type, event.ID)
		_ = wc.svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.JSON(fiber.Map{"received": true, "ignored": true})
	}

	_ = wc.svc.MarkWebhookProcessed(ctx, stored.ID, procErr)

	if procErr != nil {
		if billing.IsTerminalEventError(procErr) {
			// Retrying cannot repair a missing identity; acknowledge and
			// drop so Stripe does not hammer us with redeliveries.
			log.Printf("webhook: dropping event %s: %v", event.ID, procErr)
			return c.JSON(fiber.Map{"received": true, "dropped": true})
		}
		log.Printf("webhook: processing event %s failed: %v", event.ID, procErr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	return c.JSON(fiber.Map{"received": true})
}
