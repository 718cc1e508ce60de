package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	LocalsKey     = "USER_CONTEXT"
	KeyUserID     = "user_id"
	KeyAuthMethod = "auth_method"
)

// Authentication methods recorded on the context.
const (
	AuthMethodBearer = "bearer"
	AuthMethodAPIKey = "api_key"
)
