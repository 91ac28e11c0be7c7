package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the complete user context for a request
type UserContext struct {
	UserUUID      string `json:"user_uuid"`
	Username      string `json:"username"`
	ActiveOrgUUID string `json:"active_organization_uuid"`
	IsLoggedIn    bool   `json:"is_logged_in"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals("USER_CONTEXT"); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false}
}

// GetUserUUID returns the current user's UUID, or empty string if not logged in
func GetUserUUID(c *fiber.Ctx) string {
	return GetUserContext(c).UserUUID
}

// BillingPrincipal returns the principal that billing operations act on
// behalf of: the active organization if one is selected in the session,
// otherwise the signed-in user. This precedence rule lives here and only
// here; call sites must not re-derive it.
func (u UserContext) BillingPrincipal() string {
	if u.ActiveOrgUUID != "" {
		return u.ActiveOrgUUID
	}
	return u.UserUUID
}
