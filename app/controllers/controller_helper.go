package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/subsyncapp/subsync/internal/pkg/billing"
)

// billingTimeout bounds each billing operation, webhook processing
// included, so slow Stripe calls surface as errors inside the provider's
// delivery window instead of hanging the request.
const billingTimeout = 15 * time.Second

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), billingTimeout)
}

// respondBillingError maps service errors onto the API error envelope.
func respondBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrUserNotFound),
		errors.Is(err, billing.ErrOrganizationNotFound),
		errors.Is(err, billing.ErrCustomerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_error",
			"message": "billing operation failed, please try again or contact support",
		})
	}
}
