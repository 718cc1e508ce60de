package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/internal/pkg/database"
	"github.com/ManuelReschke/MediaDash/internal/pkg/toolkit"
	"github.com/ManuelReschke/MediaDash/internal/pkg/usercontext"
)

const testUserID = "user-1"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// asUser authenticates every request as userID on the free plan.
func asUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:      userID,
			WorkspaceID: userID,
			Email:       userID + "@example.com",
			IsLoggedIn:  true,
			Plan:        models.PlanFree,
			AuthMethod:  usercontext.AuthMethodBearer,
		})
		return c.Next()
	}
}

type fakeToolkit struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeToolkit) Submit(_ context.Context, _ string, payload map[string]interface{}) (*toolkit.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	id, _ := payload["id"].(string)
	return &toolkit.SubmitResponse{Code: 202, ID: id, JobID: "nca-" + id, Message: "processing", Raw: []byte(`{"code":202}`)}, nil
}

func (f *fakeToolkit) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeToolkit) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func countJobs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Job{}).Count(&n).Error)
	return n
}
