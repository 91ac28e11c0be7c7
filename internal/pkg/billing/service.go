package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/subsyncapp/subsync/app/models"
	"github.com/subsyncapp/subsync/internal/pkg/cache"
	"github.com/subsyncapp/subsync/internal/pkg/stripeapi"
)

const (
	pricingCacheKey = "billing:pricing:v1"
	pricingCacheTTL = 5 * time.Minute
)

// Metadata keys written onto Stripe objects so webhook processing can
// attribute provider records back to internal principals.
const (
	MetaUserID        = "user_id"
	MetaOrgID         = "organization_id"
	MetaPayingUserID  = "paying_user_id"
	dashboardPathName = "/dashboard"
)

// Config carries the environment-level settings the service needs.
type Config struct {
	// AppBaseURL is the public base URL checkout and portal sessions
	// redirect back to.
	AppBaseURL string
}

// Service links principals to Stripe customers, initiates checkout/portal
// sessions and answers subscription-status queries from the local mirror.
// All Stripe access goes through the injected client.
type Service struct {
	repo   Repository
	stripe stripeapi.Client
	cfg    Config
}

// NewService creates a billing service from an injected repository and
// Stripe client.
func NewService(repo Repository, client stripeapi.Client, cfg Config) *Service {
	return &Service{repo: repo, stripe: client, cfg: cfg}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, client stripeapi.Client, cfg Config) *Service {
	return NewService(NewRepository(db), client, cfg)
}

// EnsureCustomerForUser returns the Stripe customer ID linked to the user,
// creating the Stripe customer and the local link on first need.
func (s *Service) EnsureCustomerForUser(ctx context.Context, userUUID string) (string, error) {
	user, err := s.repo.GetUserByUUID(userUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	if existing, err := s.repo.GetCustomerByPrincipal(UserRef(userUUID)); err == nil {
		return existing.StripeCustomerID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	sc, err := s.stripe.CreateCustomer(ctx, stripeapi.CustomerParams{
		Email: user.Email,
		Name:  user.Name,
		Metadata: map[string]string{
			MetaUserID: user.UUID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	return s.linkCustomer(&models.Customer{
		StripeCustomerID: sc.ID,
		UserID:           &user.UUID,
	}, UserRef(userUUID))
}

// EnsureCustomerForOrganization is the organization-keyed counterpart of
// EnsureCustomerForUser. The Stripe record carries no email, only the
// organization reference in metadata.
func (s *Service) EnsureCustomerForOrganization(ctx context.Context, orgUUID string) (string, error) {
	org, err := s.repo.GetOrganizationByUUID(orgUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrOrganizationNotFound
		}
		return "", err
	}

	if existing, err := s.repo.GetCustomerByPrincipal(OrganizationRef(orgUUID)); err == nil {
		return existing.StripeCustomerID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	sc, err := s.stripe.CreateCustomer(ctx, stripeapi.CustomerParams{
		Name: org.Name,
		Metadata: map[string]string{
			MetaOrgID: org.UUID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	return s.linkCustomer(&models.Customer{
		StripeCustomerID: sc.ID,
		OrganizationID:   &org.UUID,
	}, OrganizationRef(orgUUID))
}

// linkCustomer persists a new customer link. When a concurrent caller won
// the insert race, the unique index rejects ours; re-read and return the
// winner's link so both callers observe the same Stripe customer ID.
func (s *Service) linkCustomer(customer *models.Customer, ref PrincipalRef) (string, error) {
	if err := s.repo.CreateCustomer(customer); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, rerr := s.repo.GetCustomerByPrincipal(ref)
			if rerr != nil {
				return "", rerr
			}
			return existing.StripeCustomerID, nil
		}
		return "", err
	}
	return customer.StripeCustomerID, nil
}

// GetActiveSubscription resolves a principal to its active subscription.
// Returns (nil, nil) when the customer exists but has no active
// subscription; that is a normal result, not an error. Plan metadata is
// fetched live from Stripe, subscription existence is answered from the
// local mirror only.
func (s *Service) GetActiveSubscription(ctx context.Context, principalID string) (*ActiveSubscription, error) {
	customer, err := s.repo.GetCustomerByPrincipalID(principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	sub, err := s.repo.GetActiveSubscription(customer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	plan, err := s.stripe.GetPlan(ctx, sub.Plan)
	if err != nil {
		return nil, fmt.Errorf("retrieve plan %s: %w", sub.Plan, err)
	}

	return &ActiveSubscription{Plan: plan, Subscription: sub}, nil
}

// CreateCheckoutSession asks Stripe for a subscription-mode checkout
// session for the principal's customer and the given price. The paying
// user's UUID is attached as subscription metadata so later webhooks can
// attribute who paid. Local subscription state is never touched here.
func (s *Service) CreateCheckoutSession(ctx context.Context, principalID, priceID, payingUserUUID string) (*stripe.CheckoutSession, error) {
	customer, err := s.repo.GetCustomerByPrincipalID(principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	session, err := s.stripe.NewCheckoutSession(ctx, stripeapi.CheckoutParams{
		CustomerID: customer.StripeCustomerID,
		PriceID:    priceID,
		SuccessURL: s.cfg.AppBaseURL + dashboardPathName,
		CancelURL:  s.cfg.AppBaseURL + dashboardPathName,
		SubscriptionMetadata: map[string]string{
			MetaPayingUserID: payingUserUUID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return session, nil
}

// CreatePortalSession asks Stripe for a self-service billing portal
// session scoped to the principal's customer and returns its URL.
func (s *Service) CreatePortalSession(ctx context.Context, principalID string) (string, error) {
	customer, err := s.repo.GetCustomerByPrincipalID(principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrCustomerNotFound
		}
		return "", err
	}

	portal, err := s.stripe.NewPortalSession(ctx, customer.StripeCustomerID, s.cfg.AppBaseURL+dashboardPathName)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return portal.URL, nil
}

// ListPricing returns the active products with their active prices for
// display. Results are cached for a few minutes; cache failures fall
// through to a live listing.
func (s *Service) ListPricing(ctx context.Context) ([]stripeapi.ProductWithPrices, error) {
	if cached, err := cache.Get(pricingCacheKey); err == nil && cached != "" {
		var out []stripeapi.ProductWithPrices
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out, nil
		}
	}

	products, err := s.stripe.ListActiveProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	if raw, err := json.Marshal(products); err == nil {
		_ = cache.Set(pricingCacheKey, string(raw), pricingCacheTTL)
	}
	return products, nil
}
