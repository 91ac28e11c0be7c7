package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/subsyncapp/subsync/internal/pkg/billing"
	"github.com/subsyncapp/subsync/internal/pkg/usercontext"
)

// BillingController serves the synchronous billing API: customer linking,
// subscription-status reads and checkout/portal session creation.
// Session authentication is enforced via middleware attached in the
// router; subscription state is never written here, only by the webhook
// reconciler.
type BillingController struct {
	svc      *billing.Service
	validate *validator.Validate
}

// NewBillingController creates a billing controller around an injected service.
func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{
		svc:      svc,
		validate: validator.New(),
	}
}

type createCustomerUserRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
}

type createCustomerOrganizationRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,uuid4"`
}

type createCheckoutSessionRequest struct {
	CustomerID string `json:"customer_id"`
	PriceID    string `json:"price_id" validate:"required"`
}

type createPortalSessionRequest struct {
	CustomerID string `json:"customer_id"`
}

// HandleCreateCustomerUser links a user to a Stripe customer, creating the
// Stripe record on first need.
func (bc *BillingController) HandleCreateCustomerUser(c *fiber.Ctx) error {
	var req createCustomerUserRequest
	if !bc.parseBody(c, &req) {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	stripeCustomerID, err := bc.svc.EnsureCustomerForUser(ctx, req.UserID)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(fiber.Map{"stripe_customer_id": stripeCustomerID})
}

// HandleCreateCustomerOrganization is the organization-keyed counterpart.
func (bc *BillingController) HandleCreateCustomerOrganization(c *fiber.Ctx) error {
	var req createCustomerOrganizationRequest
	if !bc.parseBody(c, &req) {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	stripeCustomerID, err := bc.svc.EnsureCustomerForOrganization(ctx, req.OrganizationID)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(fiber.Map{"stripe_customer_id": stripeCustomerID})
}

// HandleGetActiveSubscription answers "does principal :id have an active
// plan" from the local mirror. A principal with no active subscription
// gets a JSON null body, not an error.
func (bc *BillingController) HandleGetActiveSubscription(c *fiber.Ctx) error {
	principalID := c.Params("id")
	if principalID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "principal id missing",
		})
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := bc.svc.GetActiveSubscription(ctx, principalID)
	if err != nil {
		return respondBillingError(c, err)
	}
	if result == nil {
		return c.JSON(nil)
	}
	return c.JSON(result)
}

// HandleCreateCheckoutSession returns a subscription-mode checkout session
// for the principal in customer_id; the caller redirects the browser to
// its URL. When customer_id is omitted the session's billing principal is
// used.
func (bc *BillingController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	var req createCheckoutSessionRequest
	if !bc.parseBody(c, &req) {
		return nil
	}
	principal, ok := bc.resolvePrincipal(c, req.CustomerID)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	payingUser := usercontext.GetUserUUID(c)
	session, err := bc.svc.CreateCheckoutSession(ctx, principal, req.PriceID, payingUser)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(fiber.Map{"session": session})
}

// HandleCreatePortalSession returns a billing-portal URL for self-service
// subscription management. When customer_id is omitted the session's
// billing principal is used.
func (bc *BillingController) HandleCreatePortalSession(c *fiber.Ctx) error {
	var req createPortalSessionRequest
	if !bc.parseBody(c, &req) {
		return nil
	}
	principal, ok := bc.resolvePrincipal(c, req.CustomerID)
	if !ok {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	sessionURL, err := bc.svc.CreatePortalSession(ctx, principal)
	if err != nil {
		return respondBillingError(c, err)
	}
	return c.JSON(fiber.Map{"session_url": sessionURL})
}

// resolvePrincipal picks the principal a session operation acts on: the
// explicit customer_id if one was sent, otherwise the session's billing
// principal (active organization, else signed-in user). On failure the
// 400 response has already been written and false is returned.
func (bc *BillingController) resolvePrincipal(c *fiber.Ctx, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}
	if principal := usercontext.GetUserContext(c).BillingPrincipal(); principal != "" {
		return principal, true
	}
	_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": "customer_id missing and no session principal",
	})
	return "", false
}

// parseBody decodes and validates a JSON request body. On failure the 400
// response has already been written and false is returned.
func (bc *BillingController) parseBody(c *fiber.Ctx, req interface{}) bool {
	if err := c.BodyParser(req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "bad_request",
			"message": "invalid request body",
		})
		return false
	}
	if err := bc.validate.Struct(req); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "validation_failed",
			"message": err.Error(),
		})
		return false
	}
	return true
}
