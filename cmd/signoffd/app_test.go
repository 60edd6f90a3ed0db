package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/config"
)

const blogDefinition = `version: "1"
workflows:
  - id: blog-publication
    name: Blog Publication
    is_active: true
    applies_to:
      - collection: blogs
    steps:
      - id: review
        name: Review
        type: review
        order: 1
        assignees:
          type: roles
          roles: [reviewer]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	defsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "blogs.yaml"), []byte(blogDefinition), 0o644))

	cfg := config.Defaults()
	cfg.Definitions.Directories = []string{defsDir}
	cfg.Directory.File = filepath.Join("..", "..", "users.yaml")
	return cfg
}

func buildApp(t *testing.T, cfg *config.Config) (*App, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	app, err := build(context.Background(), cfg, zap.NewNop(), reg, reg)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app, reg
}

func readyStatus(t *testing.T, app *App) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	app.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestBuild_memory(t *testing.T) {
	app, _ := buildApp(t, testConfig(t))

	assert.Equal(t, 1, app.Registry.Len())
	code, body := readyStatus(t, app)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
}

func TestBuild_trigger_through_router(t *testing.T) {
	app, _ := buildApp(t, testConfig(t))

	post := func(path string, body any) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, jsonBody(t, body))
		req.Header.Set("Content-Type", "application/json")
		app.Handler.ServeHTTP(rec, req)
		return rec
	}

	// The memory document store accepts the document with the event.
	rec := post("/api/documents/blogs/b-1/events", map[string]any{
		"operation": "create",
		"document":  map[string]any{"title": "Hello"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = post("/api/workflows/trigger", map[string]any{"documentId": "b-1", "collectionSlug": "blogs"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status, err := app.Engine.Status(context.Background(), "b-1", "blogs")
	require.NoError(t, err)
	assert.True(t, status.HasWorkflow)
}

func TestBuild_redis_lock(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("SIGNOFF_REDIS_ADDR", mr.Addr())

	cfg := testConfig(t)
	cfg.Workflow.Lock.Driver = config.DriverRedis
	app, _ := buildApp(t, cfg)

	code, body := readyStatus(t, app)
	assert.Equal(t, http.StatusOK, code)
	checks := body["checks"].(map[string]any)
	assert.Contains(t, checks, "redis")

	mr.Close()
	code, _ = readyStatus(t, app)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestBuild_redis_lock_requires_address(t *testing.T) {
	t.Setenv("SIGNOFF_REDIS_ADDR", "")
	cfg := testConfig(t)
	cfg.Workflow.Lock.Driver = config.DriverRedis

	_, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry(), prometheus.NewRegistry())
	assert.ErrorContains(t, err, "SIGNOFF_REDIS_ADDR")
}

func TestBuild_rejects_invalid_definitions(t *testing.T) {
	cfg := testConfig(t)
	bad := filepath.Join(cfg.Definitions.Directories[0], "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: \"1\"\nworkflows:\n  - id: broken\n"), 0o644))

	_, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry(), prometheus.NewRegistry())
	assert.ErrorContains(t, err, "invalid definitions")
}

func TestBuild_identity_requires_key(t *testing.T) {
	t.Setenv("SIGNOFF_JWT_SECRET", "")
	cfg := testConfig(t)
	cfg.Identity.Enabled = true

	_, err := build(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry(), prometheus.NewRegistry())
	assert.ErrorContains(t, err, "no verification key")
}

func TestApp_Reload(t *testing.T) {
	cfg := testConfig(t)
	app, reg := buildApp(t, cfg)
	dir := cfg.Definitions.Directories[0]
	before := app.Registry.Checksum()

	second := `version: "1"
workflows:
  - id: news
    name: News
    is_active: true
    applies_to:
      - collection: news
    steps: []
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "news.yaml"), []byte(second), 0o644))
	require.NoError(t, app.Reload())
	assert.Equal(t, 2, app.Registry.Len())
	assert.NotEqual(t, before, app.Registry.Checksum())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "news.yaml"), []byte("workflows: ["), 0o644))
	assert.Error(t, app.Reload())
	assert.Equal(t, 2, app.Registry.Len(), "failed reload keeps the previous catalog")

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "signoff_definition_reload_total"))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
