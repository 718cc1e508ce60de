package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/auth"
	"github.com/ManuelReschke/MediaDash/internal/pkg/usercontext"
)

// BearerAuth verifies the bearer token against the auth provider and loads
// (or creates) the caller's workspace.
func BearerAuth(verifier auth.Verifier, workspaces repository.WorkspaceRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return authenticateBearer(c, verifier, workspaces, extractBearerToken(c))
	}
}

// BearerOrAPIKeyAuth accepts either a workspace API key (X-API-Key header or
// a bearer value with the key prefix) or a provider bearer token.
func BearerOrAPIKeyAuth(verifier auth.Verifier, workspaces repository.WorkspaceRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey := extractAPIKeyFromHeader(c); apiKey != "" {
			return authenticateAPIKey(c, workspaces, apiKey)
		}
		return authenticateBearer(c, verifier, workspaces, extractBearerToken(c))
	}
}

func authenticateBearer(c *fiber.Ctx, verifier auth.Verifier, workspaces repository.WorkspaceRepository, token string) error {
	if token == "" {
		return unauthorized(c, "Missing bearer token")
	}

	identity, err := verifier.Verify(c.UserContext(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrMissingToken) {
			return unauthorized(c, "Invalid or expired token")
		}
		log.Errorf("[Auth] token verification failed for %s: %v", auth.MaskToken(token), err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "auth_unavailable", "message": "Authentication service unavailable"})
	}

	ws, err := workspaces.GetOrCreate(identity.UserID, identity.Email)
	if err != nil {
		log.Errorf("[Auth] workspace lookup failed for user %s: %v", identity.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Workspace unavailable"})
	}

	usercontext.SetUserContext(c, newUserContext(ws, identity.Email, usercontext.AuthMethodBearer))
	return c.Next()
}

func extractBearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": message,
	})
}

func newUserContext(ws *models.Workspace, email, method string) usercontext.UserContext {
	return usercontext.UserContext{
		UserID:      ws.ID,
		WorkspaceID: ws.ID,
		Email:       email,
		IsLoggedIn:  true,
		Plan:        ws.EffectivePlan(),
		AuthMethod:  method,
	}
}
