package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/MediaDash/app/controllers"
	"github.com/ManuelReschke/MediaDash/app/repository"
	"github.com/ManuelReschke/MediaDash/internal/pkg/auth"
	"github.com/ManuelReschke/MediaDash/internal/pkg/database"
	"github.com/ManuelReschke/MediaDash/internal/pkg/mediajob"
)

type denyAll struct{}

func (denyAll) Verify(context.Context, string) (*auth.Identity, error) {
	return nil, auth.ErrInvalidToken
}

func newRoutedApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Controllers: controllers.NewControllers(db, nil),
		Verifier:    denyAll{},
		Workspaces:  repository.NewWorkspaceRepository(db),
	})
	return app
}

func TestInstallRouter_RegistersEndpoints(t *testing.T) {
	app := newRoutedApp(t)

	registered := map[string]bool{}
	for _, r := range app.GetRoutes(true) {
		registered[r.Method+" "+strings.TrimSuffix(r.Path, "/")] = true
	}

	want := []string{
		"POST /webhooks/media",
		"POST /webhooks/stripe",
		"GET /healthz",
		"GET /api/v1/jobs",
		"GET /api/v1/jobs/:id",
		"POST /api/v1/billing/checkout",
		"POST /api/v1/billing/portal",
		"GET /api/v1/billing/products",
		"POST /api/v1/billing/subscription/free",
		"GET /api/v1/billing/subscriptions",
		"POST /api/v1/chats",
		"GET /api/v1/chats",
		"GET /api/v1/chats/:id",
		"PATCH /api/v1/chats/:id",
		"DELETE /api/v1/chats/:id",
		"POST /api/v1/chats/:id/completions",
		"POST /api/v1/email/send",
		"GET /api/v1/account",
		"POST /api/v1/account/api-key",
		"DELETE /api/v1/account/api-key",
		"POST /api/v1/uploads/presign",
	}
	for _, op := range mediajob.Operations {
		want = append(want, "POST /api/v1/media"+op.Route)
	}
	for _, route := range want {
		assert.True(t, registered[route], "missing route %s", route)
	}
}

func TestInstallRouter_APIRequiresAuth(t *testing.T) {
	app := newRoutedApp(t)

	tests := []struct {
		method string
		path   string
		auth   string
	}{
		{http.MethodGet, "/api/v1/jobs", ""},
		{http.MethodPost, "/api/v1/media/video/cut", "Bearer nope"},
		{http.MethodPost, "/api/v1/chats", ""},
		{http.MethodPost, "/api/v1/billing/checkout", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestInstallRouter_WebhookIsPublic(t *testing.T) {
	app := newRoutedApp(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/media", strings.NewReader(`{"job_id":"nca-unknown","code":200}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
