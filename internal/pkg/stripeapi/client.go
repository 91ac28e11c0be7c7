package stripeapi

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/plan"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CustomerParams is the provider-neutral input for creating a customer.
// Metadata must carry the internal principal reference so webhook
// processing can reconstruct the linkage later.
type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// CheckoutParams is the input for a subscription-mode checkout session.
type CheckoutParams struct {
	CustomerID           string
	PriceID              string
	SuccessURL           string
	CancelURL            string
	SubscriptionMetadata map[string]string
}

// ProductWithPrices pairs a catalog product with its active prices.
type ProductWithPrices struct {
	Product *stripe.Product `json:"product"`
	Prices  []*stripe.Price `json:"prices"`
}

// Client is the Stripe API surface SubSync depends on. It is injected into
// every component at construction time so tests can substitute a fake.
type Client interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*stripe.Customer, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	GetPlan(ctx context.Context, id string) (*stripe.Plan, error)
	NewCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error)
	NewPortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
	ListActiveProducts(ctx context.Context) ([]ProductWithPrices, error)
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// apiClient talks to the real Stripe API via stripe-go.
type apiClient struct {
	webhookSecret string
}

// NewClient configures the Stripe SDK with the given secret key and
// returns a Client verifying webhooks against webhookSecret.
func NewClient(secretKey, webhookSecret string) (Client, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if webhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	stripe.Key = secretKey
	return &apiClient{webhookSecret: webhookSecret}, nil
}

func (a *apiClient) CreateCustomer(ctx context.Context, params CustomerParams) (*stripe.Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		p.Name = stripe.String(params.Name)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	return customer.New(p)
}

func (a *apiClient) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	return customer.Get(id, p)
}

func (a *apiClient) GetPlan(ctx context.Context, id string) (*stripe.Plan, error) {
	p := &stripe.PlanParams{}
	p.Context = ctx
	return plan.Get(id, p)
}

func (a *apiClient) NewCheckoutSession(ctx context.Context, params CheckoutParams) (*stripe.CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(params.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}
	p.Context = ctx
	if len(params.SubscriptionMetadata) > 0 {
		p.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.SubscriptionMetadata,
		}
	}
	return checkoutsession.New(p)
}

func (a *apiClient) NewPortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	p := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	p.Context = ctx
	return portalsession.New(p)
}

func (a *apiClient) ListActiveProducts(ctx context.Context) ([]ProductWithPrices, error) {
	pp := &stripe.ProductListParams{Active: stripe.Bool(true)}
	pp.Context = ctx
	pp.Limit = stripe.Int64(100)

	var out []ProductWithPrices
	it := product.List(pp)
	for it.Next() {
		prod := it.Product()
		prices, err := a.listActivePrices(ctx, prod.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ProductWithPrices{Product: prod, Prices: prices})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *apiClient) listActivePrices(ctx context.Context, productID string) ([]*stripe.Price, error) {
	lp := &stripe.PriceListParams{
		Active:  stripe.Bool(true),
		Product: stripe.String(productID),
	}
	lp.Context = ctx
	lp.Limit = stripe.Int64(100)

	var prices []*stripe.Price
	it := price.List(lp)
	for it.Next() {
		prices = append(prices, it.Price())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

func (a *apiClient) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
