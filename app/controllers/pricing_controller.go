package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/subsyncapp/subsync/internal/pkg/billing"
	"github.com/subsyncapp/subsync/internal/pkg/stripeapi"
)

// PricingController serves the public pricing catalog. Stateless and
// read-only; the catalog lives at Stripe and is only cached here.
type PricingController struct {
	svc *billing.Service
}

// NewPricingController creates a pricing controller around an injected service.
func NewPricingController(svc *billing.Service) *PricingController {
	return &PricingController{svc: svc}
}

// HandleGetPricing lists active products with their active prices.
func (pc *PricingController) HandleGetPricing(c *fiber.Ctx) error {
	ctx, cancel := requestContext()
	defer cancel()

	products, err := pc.svc.ListPricing(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "could not load pricing",
		})
	}
	if products == nil {
		products = []stripeapi.ProductWithPrices{}
	}
	return c.JSON(products)
}
