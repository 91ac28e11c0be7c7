package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/subsyncapp/subsync/internal/pkg/session"
	"github.com/subsyncapp/subsync/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request.
// This centralizes session handling and eliminates code duplication. The
// session itself is written by the external authentication service; this
// middleware only reads it.
func UserContextMiddleware(c *fiber.Ctx) error {
	// Get session with error handling
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		// On error: treat as anonymous
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	userUUID, _ := sess.Get(usercontext.KeyUserUUID).(string)
	if userUUID == "" {
		// Anonymous user - no session data
		c.Locals("USER_CONTEXT", usercontext.UserContext{IsLoggedIn: false})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	username, _ := sess.Get(usercontext.KeyUsername).(string)
	activeOrg, _ := sess.Get(usercontext.KeyActiveOrg).(string)

	// Set complete user context
	userCtx := usercontext.UserContext{
		UserUUID:      userUUID,
		Username:      username,
		ActiveOrgUUID: activeOrg,
		IsLoggedIn:    true,
	}
	c.Locals("USER_CONTEXT", userCtx)
	c.Locals(usercontext.KeyFromProtected, true)

	return c.Next()
}
