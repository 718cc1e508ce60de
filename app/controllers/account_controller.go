package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/entitlements"
	"github.com/ManuelReschke/MediaDash/internal/pkg/usercontext"
)

// AccountController exposes the caller's workspace and manages its API key.
type AccountController struct {
	workspaces repository.WorkspaceRepository
	jobs       repository.JobRepository
}

// NewAccountController creates an account controller with repository dependencies
func NewAccountController(repos *repository.Repositories) *AccountController {
	return &AccountController{workspaces: repos.Workspace, jobs: repos.Job}
}

// HandleGetAccount returns workspace information for the authenticated caller (bearer or API key).
func (ac *AccountController) HandleGetAccount(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}

	ws, err := ac.workspaces.GetByID(caller.WorkspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(c, "Workspace not found")
		}
		return internalError(c, "Failed to load workspace")
	}

	active, err := ac.jobs.CountActiveByWorkspace(ws.ID)
	if err != nil {
		return internalError(c, "Failed to load statistics")
	}

	plan := entitlements.Plan(ws.EffectivePlan())
	limits := entitlements.ForPlan(plan)

	return c.JSON(fiber.Map{
		"id":                   ws.ID,
		"email":                firstNonBlank(caller.Email, ws.OwnerEmail),
		"plan":                 string(plan),
		"auth_method":          caller.AuthMethod,
		"created_at":           ws.CreatedAt.UTC().Format(time.RFC3339),
		"notify_on_job_finish": ws.NotifyOnJobFinish,
		"api_key": fiber.Map{
			"active":       ws.HasActiveAPIKey(),
			"prefix":       ws.APIKeyPrefix,
			"created_at":   formatTimePtr(ws.APIKeyCreatedAt),
			"last_used_at": formatTimePtr(ws.APIKeyLastUsedAt),
		},
		"stats": fiber.Map{
			"active_jobs": active,
		},
		"limits": fiber.Map{
			"max_active_jobs":    limits.MaxActiveJobs,
			"allowed_operations": limits.AllowedOperations,
			"chat_enabled":       limits.ChatEnabled,
		},
	})
}

type accountSettingsRequest struct {
	NotifyOnJobFinish *bool `json:"notify_on_job_finish"`
}

// HandleUpdateSettings toggles the job-finished email notification.
func (ac *AccountController) HandleUpdateSettings(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var req accountSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Request body must be valid JSON")
	}
	if req.NotifyOnJobFinish == nil {
		return badRequest(c, "notify_on_job_finish is required")
	}
	ws, err := ac.workspaces.GetByID(caller.WorkspaceID)
	if err != nil {
		return notFound(c, "Workspace not found")
	}
	ws.NotifyOnJobFinish = *req.NotifyOnJobFinish
	if err := ac.workspaces.Save(ws); err != nil {
		return internalError(c, "Failed to save settings")
	}
	return c.JSON(fiber.Map{"notify_on_job_finish": ws.NotifyOnJobFinish})
}

// HandleIssueAPIKey rotates the workspace API key. The raw key is only
// returned once. API key callers cannot rotate their own key.
func (ac *AccountController) HandleIssueAPIKey(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	if caller.AuthMethod == usercontext.AuthMethodAPIKey {
		return errorJSON(c, fiber.StatusForbidden, "forbidden", "API keys can only be managed with a user session")
	}
	ws, err := ac.workspaces.GetOrCreate(caller.WorkspaceID, caller.Email)
	if err != nil {
		return internalError(c, "Failed to load workspace")
	}
	rawKey, err := ws.IssueAPIKey()
	if err != nil {
		return internalError(c, "Failed to generate API key")
	}
	if err := ac.workspaces.Save(ws); err != nil {
		return internalError(c, "Failed to store API key")
	}
	log.Infof("[Account] issued API key %s for workspace %s", ws.APIKeyPrefix, ws.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    rawKey,
		"prefix":     ws.APIKeyPrefix,
		"created_at": formatTimePtr(ws.APIKeyCreatedAt),
	})
}

// HandleRevokeAPIKey disables the workspace API key.
func (ac *AccountController) HandleRevokeAPIKey(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	if caller.AuthMethod == usercontext.AuthMethodAPIKey {
		return errorJSON(c, fiber.StatusForbidden, "forbidden", "API keys can only be managed with a user session")
	}
	ws, err := ac.workspaces.GetByID(caller.WorkspaceID)
	if err != nil {
		return notFound(c, "Workspace not found")
	}
	if !ws.HasActiveAPIKey() {
		return notFound(c, "No active API key")
	}
	ws.RevokeAPIKey()
	if err := ac.workspaces.Save(ws); err != nil {
		return internalError(c, "Failed to revoke API key")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
