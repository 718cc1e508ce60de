package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/usercontext"
)

// authenticateAPIKey resolves the workspace owning apiKey and records its use.
func authenticateAPIKey(c *fiber.Ctx, workspaces repository.WorkspaceRepository, apiKey string) error {
	ws, err := workspaces.GetByAPIKeyHash(models.HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return unauthorized(c, "Invalid API key")
		}
		log.Errorf("[Auth] api key lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
	}

	// Refresh last-used timestamp best-effort.
	if err := workspaces.TouchAPIKeyUsage(ws.ID, time.Now()); err != nil {
		log.Warnf("[Auth] failed to update api key usage timestamp for workspace %s: %v", ws.ID, err)
	}

	usercontext.SetUserContext(c, newUserContext(ws, ws.OwnerEmail, usercontext.AuthMethodAPIKey))
	return c.Next()
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	if apiKey := strings.TrimSpace(c.Get("X-API-Key")); apiKey != "" {
		return apiKey
	}
	if token := extractBearerToken(c); models.IsAPIKey(token) {
		return token
	}
	return ""
}
