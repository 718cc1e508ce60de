package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext is the explicit caller identity handed to every handler and
// service. The workspace is the user's billing scope and shares its ID.
type UserContext struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Email       string `json:"email"`
	IsLoggedIn  bool   `json:"is_logged_in"`
	Plan        string `json:"plan"`
	AuthMethod  string `json:"auth_method"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(LocalsKey).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// SetUserContext stores uc on the request.
func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(LocalsKey, uc)
	c.Locals(KeyUserID, uc.UserID)
	c.Locals(KeyAuthMethod, uc.AuthMethod)
}
