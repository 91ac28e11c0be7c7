package billing

import (
	"strings"

	"github.com/subsyncapp/subsync/app/models"
)

// NormalizeStatus canonicalizes a provider status string. Unknown values
// pass through unchanged; the mirror stores the provider vocabulary
// verbatim.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// IsEntitling reports whether a subscription status counts as an active
// entitlement. Only active and trialing qualify; past_due deliberately
// does not.
func IsEntitling(status string) bool {
	switch NormalizeStatus(status) {
	case models.BillingStatusActive, models.BillingStatusTrialing:
		return true
	default:
		return false
	}
}
