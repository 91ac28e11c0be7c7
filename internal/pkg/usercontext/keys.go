package usercontext

// Shared Locals/session keys used across controllers and middlewares.
// The external auth service writes the session keys; SubSync only reads.
const (
	KeyUserUUID      = "user_uuid"
	KeyUsername      = "user_name"
	KeyActiveOrg     = "active_organization_uuid"
	KeyFromProtected = "from_protected"
)
