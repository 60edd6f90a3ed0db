package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func hmacIdentity(t *testing.T) config.IdentityConfig {
	t.Setenv("SIGNOFF_TEST_JWT_SECRET", testSecret)
	return config.IdentityConfig{
		Enabled:    true,
		Issuer:     "https://id.example.com",
		Audience:   "signoff",
		Algorithms: []string{"HS256"},
		SecretEnv:  "SIGNOFF_TEST_JWT_SECRET",
		RolesClaim: "roles",
	}
}

func signHMAC(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "alice",
		"iss":   "https://id.example.com",
		"aud":   "signoff",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"roles": []string{"reviewer"},
	}
}

// authChain runs the authenticated chain and echoes the request context.
func authChain(t *testing.T, cfg config.IdentityConfig) http.Handler {
	t.Helper()
	keyFunc, err := NewKeyFunc(cfg)
	require.NoError(t, err)
	return JWTAuthenticator(cfg, keyFunc)(BuildRequestContext(cfg.RolesClaim)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			rctx := model.RequestContextFrom(r.Context())
			WriteJSON(w, http.StatusOK, map[string]any{"sub": rctx.SubjectID, "roles": rctx.Roles})
		})))
}

func callWithToken(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthenticator_accepts_valid_token(t *testing.T) {
	h := authChain(t, hmacIdentity(t))

	rec := callWithToken(h, signHMAC(t, validClaims()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"sub":"alice"`)
	assert.Contains(t, rec.Body.String(), `"reviewer"`)
}

func TestJWTAuthenticator_rejections(t *testing.T) {
	cfg := hmacIdentity(t)
	h := authChain(t, cfg)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://evil.example.com"
	wrongAudience := validClaims()
	wrongAudience["aud"] = "someone-else"
	noSubject := validClaims()
	delete(noSubject, "sub")
	noExpiry := validClaims()
	delete(noExpiry, "exp")

	badSig, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"missing header", "", "Missing authorization header"},
		{"expired", signHMAC(t, expired), "Token expired"},
		{"issuer", signHMAC(t, wrongIssuer), "Invalid token issuer"},
		{"audience", signHMAC(t, wrongAudience), "Invalid token audience"},
		{"signature", badSig, "Invalid token signature"},
		{"no subject", signHMAC(t, noSubject), "Token has no subject"},
		{"no expiry", signHMAC(t, noExpiry), "Token is missing a required claim"},
		{"garbage", "not-a-jwt", "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := callWithToken(h, tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
		})
	}
}

func TestJWTAuthenticator_requires_bearer_scheme(t *testing.T) {
	h := authChain(t, hmacIdentity(t))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid authorization header format")
}

func TestNewKeyFunc_rsa_public_key(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	cfg := config.IdentityConfig{Enabled: true, Algorithms: []string{"RS256"}, PublicKeyFile: path}
	h := authChain(t, cfg)

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	require.NoError(t, err)
	rec := callWithToken(h, token)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// An HMAC token is refused when only RS256 is allowed.
	rec = callWithToken(h, signHMAC(t, validClaims()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewKeyFunc_requires_a_key(t *testing.T) {
	t.Setenv("SIGNOFF_TEST_EMPTY", "")
	_, err := NewKeyFunc(config.IdentityConfig{SecretEnv: "SIGNOFF_TEST_EMPTY"})
	assert.Error(t, err)
}

func TestAuthenticated_subject_overrides_body_user(t *testing.T) {
	cfg := hmacIdentity(t)
	keyFunc, err := NewKeyFunc(cfg)
	require.NoError(t, err)

	s := newTestServer(t, func(d *Dependencies) {
		d.Config.Identity = cfg
		d.Authenticate = JWTAuthenticator(cfg, keyFunc)
	})

	trigger := httptest.NewRequest(http.MethodPost, "/api/workflows/trigger",
		jsonBody(t, map[string]string{"documentId": "doc-1", "collectionSlug": "posts"}))
	trigger.Header.Set("Authorization", "Bearer "+signHMAC(t, validClaims()))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, trigger)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The body claims carol, the token says alice; alice is a reviewer.
	act := httptest.NewRequest(http.MethodPost, "/api/workflows/action", jsonBody(t, action("carol", 0, "approve")))
	act.Header.Set("Authorization", "Bearer "+signHMAC(t, validClaims()))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, act)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	unauth := httptest.NewRequest(http.MethodPost, "/api/workflows/action", jsonBody(t, action("alice", 0, "approve")))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, unauth)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
