package transport

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/model"
)

// NewKeyFunc builds the verification key lookup for the configured
// algorithms: an HMAC secret read from the environment, or an RSA public key
// read from a PEM file.
func NewKeyFunc(cfg config.IdentityConfig) (jwt.Keyfunc, error) {
	var (
		secret    []byte
		publicKey any
	)
	if cfg.SecretEnv != "" {
		if v := os.Getenv(cfg.SecretEnv); v != "" {
			secret = []byte(v)
		}
	}
	if cfg.PublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("auth: reading public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("auth: parsing public key: %w", err)
		}
		publicKey = key
	}
	if secret == nil && publicKey == nil {
		return nil, errors.New("auth: no verification key configured")
	}

	return func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if secret == nil {
				return nil, errors.New("hmac tokens are not accepted")
			}
			return secret, nil
		case *jwt.SigningMethodRSA:
			if publicKey == nil {
				return nil, errors.New("rsa tokens are not accepted")
			}
			return publicKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
	}, nil
}

// JWTAuthenticator returns middleware that verifies bearer tokens and stores
// the verified claims in the request context.
func JWTAuthenticator(cfg config.IdentityConfig, keyFunc jwt.Keyfunc) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, r, model.NewUnauthorizedError("Missing authorization header"))
				return
			}
			tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				WriteError(w, r, model.NewUnauthorizedError("Invalid authorization header format"))
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, keyFunc)
			if err != nil {
				WriteError(w, r, model.NewUnauthorizedError(classifyJWTError(err)))
				return
			}
			if !token.Valid {
				WriteError(w, r, model.NewUnauthorizedError("Invalid token"))
				return
			}
			if sub, _ := claims.GetSubject(); sub == "" {
				WriteError(w, r, model.NewUnauthorizedError("Token has no subject"))
				return
			}

			ctx := WithClaims(r.Context(), map[string]any(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func classifyJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "Token is missing a required claim"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "Disallowed signing algorithm"
	default:
		return "Invalid token"
	}
}
