// Package integration provides an end-to-end test harness for the signoff
// server. It wires the real router, engine and collaborators against
// in-process stand-ins: miniredis for the instance lock, a mock webhook
// relay for notifications and an RSA token issuer for authentication.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/assignee"
	"github.com/pitabwire/signoff/internal/audit"
	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/internal/definition"
	"github.com/pitabwire/signoff/internal/directory"
	"github.com/pitabwire/signoff/internal/document"
	"github.com/pitabwire/signoff/internal/notify"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/internal/openapi"
	"github.com/pitabwire/signoff/internal/transport"
	"github.com/pitabwire/signoff/internal/workflow"
	"github.com/pitabwire/signoff/model"
)

// TestHarness is a fully wired signoff server.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	Engine    *workflow.Engine
	Documents *document.MemoryStore
	Audit     *audit.MemoryStore
	Redis     *miniredis.Miniredis
	Relay     *MockRelay
	Webhook   *notify.WebhookNotifier
	Registry  *prometheus.Registry
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	handlerTimeout time.Duration
	breaker        config.CircuitBreakerConfig
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) { c.handlerTimeout = d }
}

// WithCircuitBreaker configures the notification webhook breaker.
func WithCircuitBreaker(cb config.CircuitBreakerConfig) HarnessOption {
	return func(c *harnessConfig) { c.breaker = cb }
}

// NewTestHarness creates and starts a signoff server. It is shut down when
// the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
		breaker:        config.CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 1, Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{
		t:         t,
		issuer:    newTokenIssuer(t),
		Documents: document.NewMemoryStore(),
		Audit:     audit.NewMemoryStore(),
		Redis:     miniredis.RunT(t),
		Relay:     newMockRelay(t),
		Registry:  prometheus.NewRegistry(),
	}

	files, err := definition.NewLoader().LoadAll([]string{filepath.Join(testdataDir(), "definitions")})
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(files); len(verrs) > 0 {
		t.Fatalf("invalid definitions: %v", verrs)
	}

	users, err := directory.NewStaticDirectory(filepath.Join(testdataDir(), "users.yaml"))
	if err != nil {
		t.Fatalf("load users: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := workflow.NewRedisLocker(client, "signoff-test", 5*time.Second, 5*time.Millisecond)

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Identity = config.IdentityConfig{
		Enabled:       true,
		Issuer:        h.issuer.issuer,
		Audience:      h.issuer.audience,
		Algorithms:    []string{"RS256"},
		PublicKeyFile: h.issuer.publicKeyFile,
		RolesClaim:    "roles",
	}
	cfg.Notifications.Webhook.URL = h.Relay.URL()
	cfg.Notifications.Webhook.CircuitBreaker = hc.breaker

	metrics := observability.InitMetrics(h.Registry)
	h.Webhook = notify.NewWebhookNotifier(cfg.Notifications.Webhook, zap.NewNop())

	registry := definition.NewRegistry(files)
	h.Engine = workflow.NewEngine(
		registry,
		workflow.NewMemoryInstanceStore(),
		locker,
		audit.NewLogger(h.Audit),
		assignee.NewResolver(directory.NewCachedDirectory(users, time.Minute, metrics.ObserveDirectoryCache)),
		h.Documents,
		notify.Multi{notify.NewLogNotifier(zap.NewNop()), h.Webhook},
		zap.NewNop(),
		workflow.WithRecorder(metrics),
	)

	spec, err := openapi.Load(context.Background())
	if err != nil {
		t.Fatalf("load API description: %v", err)
	}

	keyFunc, err := transport.NewKeyFunc(cfg.Identity)
	if err != nil {
		t.Fatalf("key func: %v", err)
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       h.Engine,
		Documents:    h.Documents,
		Spec:         spec,
		Logger:       zap.NewNop(),
		Authenticate: transport.JWTAuthenticator(cfg.Identity, keyFunc),
		Metrics:      metrics,
		Gatherer:     h.Registry,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return registry.Len() > 0 },
			Dependencies:      map[string]observability.HealthChecker{"redis": locker},
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// GenerateToken creates a valid JWT for the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// PutDocument stores a document the engine can read.
func (h *TestHarness) PutDocument(collection, id string, doc model.Document) {
	h.Documents.Put(collection, id, doc)
}

// --- HTTP client helpers ---

// GET performs a GET request, authenticated when token is set.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// AssertStatus checks the response status and drains the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, body)
	}
}

// AssertJSON checks the response status and decodes the body into target.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != expected {
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, data)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("unmarshal response body: %v\nbody: %s", err, data)
	}
}

// ErrorCode decodes an error envelope and returns its code.
func (h *TestHarness) ErrorCode(t *testing.T, resp *http.Response, expected int) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	h.AssertJSON(t, resp, expected, &body)
	return body.Error.Code
}

// --- Default test claims ---

func ReviewerClaims() TestClaims {
	return TestClaims{SubjectID: "user-reviewer", Email: "reviewer@acme.example.com", Roles: []string{"reviewer"}}
}

func CounselClaims() TestClaims {
	return TestClaims{SubjectID: "user-counsel", Email: "counsel@acme.example.com", Roles: []string{"reviewer"}}
}

func CFOClaims() TestClaims {
	return TestClaims{SubjectID: "user-cfo", Email: "cfo@acme.example.com", Roles: []string{"manager"}}
}

func ManagerClaims() TestClaims {
	return TestClaims{SubjectID: "user-manager", Email: "manager@acme.example.com", Roles: []string{"manager"}}
}

// --- Helpers ---

func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}

// ActionBody builds a submitAction request body. The acting user comes
// from the token.
func ActionBody(documentID, collection string, step int, action, comment string) map[string]any {
	body := map[string]any{
		"documentId":     documentID,
		"collectionSlug": collection,
		"stepIndex":      step,
		"action":         action,
	}
	if comment != "" {
		body["comment"] = comment
	}
	return body
}
