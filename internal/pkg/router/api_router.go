package router

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/subsyncapp/subsync/app/controllers"
	"github.com/subsyncapp/subsync/internal/pkg/billing"
	"github.com/subsyncapp/subsync/internal/pkg/database"
	"github.com/subsyncapp/subsync/internal/pkg/env"
	"github.com/subsyncapp/subsync/internal/pkg/middleware"
	"github.com/subsyncapp/subsync/internal/pkg/stripeapi"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	client, err := stripeapi.NewClient(
		env.GetEnv("STRIPE_SECRET_KEY", ""),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
	if err != nil {
		log.Fatalf("stripe client setup failed: %v", err)
	}

	svc := billing.NewServiceFromDB(database.GetDB(), client, billing.Config{
		AppBaseURL: env.GetEnv("PUBLIC_APP_URL", ""),
	})

	billingCtrl := controllers.NewBillingController(svc)
	pricingCtrl := controllers.NewPricingController(svc)
	webhookCtrl := controllers.NewWebhookController(svc, client)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	b := v1.Group("/billing")
	b.Get("/pricing", pricingCtrl.HandleGetPricing)
	b.Post("/create-customer-user", middleware.RequireAPISessionAuth, billingCtrl.HandleCreateCustomerUser)
	b.Post("/create-customer-organization", middleware.RequireAPISessionAuth, billingCtrl.HandleCreateCustomerOrganization)
	b.Get("/active-subscription/:id", middleware.RequireAPISessionAuth, billingCtrl.HandleGetActiveSubscription)
	b.Post("/create-checkout-session", middleware.RequireAPISessionAuth, billingCtrl.HandleCreateCheckoutSession)
	b.Post("/create-portal-session", middleware.RequireAPISessionAuth, billingCtrl.HandleCreatePortalSession)

	// Webhooks carry no session; the handler authenticates the payload
	// signature itself. Mounted outside the rate-limited /api prefix so
	// bursts of provider redeliveries are never throttled into retry loops.
	app.Post("/webhooks/stripe", webhookCtrl.HandleStripeWebhook)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
