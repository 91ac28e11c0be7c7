package billing

import "errors"

var (
	// ErrUserNotFound and friends map to 404 on the synchronous API paths.
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrCustomerNotFound     = errors.New("customer not found")

	// ErrNoCheckoutURL means Stripe accepted the session but returned no
	// redirect URL, which callers cannot act on.
	ErrNoCheckoutURL = errors.New("could not create checkout session: no redirect url")

	// ErrIdentityMissing is terminal: the referenced Stripe customer
	// carries neither a user_id nor an organization_id in its metadata, so
	// no retry can ever link it.
	ErrIdentityMissing = errors.New("no user or organization id in stripe customer metadata")

	// ErrUnknownCustomer is terminal: a deletion event referenced a Stripe
	// customer we never linked.
	ErrUnknownCustomer = errors.New("no local customer for stripe customer id")
)

// IsTerminalEventError reports whether a reconciliation error is a data
// quality gap that retrying cannot fix. Such events are logged and
// dropped; everything else is surfaced as 5xx so the provider redelivers.
func IsTerminalEventError(err error) bool {
	return errors.Is(err, ErrIdentityMissing) || errors.Is(err, ErrUnknownCustomer)
}
