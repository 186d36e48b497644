// Package auth verifies bearer tokens issued by the identity provider and
// exposes the resulting principal to the rest of the server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/nntndfrk/alias-game/internal/apierr"
	"github.com/nntndfrk/alias-game/internal/resilience"
)

// Principal is the authenticated identity attached to a request or
// WebSocket connection once a bearer token has been verified.
type Principal struct {
	Subject string
	Name    string
	Email   string
}

// claims is the JWT claim set the identity provider issues.
type claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator verifies a bearer token string and returns the principal it
// names, or an error if the token is missing, expired, or otherwise invalid.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Principal, error)
}

// JWKSValidator validates tokens against a JSON Web Key Set fetched from the
// identity provider, refreshed on a background interval.
type JWKSValidator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience string
	breaker  *resilience.Breaker
}

// NewJWKSValidator registers jwksURL with a background-refreshing key cache
// and fetches it once to fail fast if the identity provider is unreachable
// at startup.
func NewJWKSValidator(ctx context.Context, jwksURL, issuer, audience string) (*JWKSValidator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithRefreshInterval(1*time.Hour)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch initial jwks: %w", err)
	}

	keyFunc := func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("token header missing kid")
		}
		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}
		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("no key for kid %s", kid)
		}
		var pub any
		if err := key.Raw(&pub); err != nil {
			return nil, fmt.Errorf("decode jwk: %w", err)
		}
		return pub, nil
	}

	return &JWKSValidator{
		keyFunc:  keyFunc,
		issuer:   issuer,
		audience: audience,
		breaker:  resilience.New("identity_provider", 3, 30*time.Second),
	}, nil
}

// Validate parses and verifies tokenString, wrapping the key lookup in a
// circuit breaker so a flapping identity provider degrades to fast
// rejections instead of stalling every WebSocket handshake.
func (v *JWKSValidator) Validate(ctx context.Context, tokenString string) (*Principal, error) {
	result, err := v.breaker.Execute(ctx, func() (any, error) {
		token, err := jwt.ParseWithClaims(tokenString, &claims{}, v.keyFunc,
			jwt.WithIssuer(v.issuer),
			jwt.WithAudience(v.audience),
		)
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("token not valid")
		}
		c, ok := token.Claims.(*claims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
		return c, nil
	})
	if err != nil {
		if resilience.IsOpenState(err) {
			return nil, apierr.NewTransient("identity provider unavailable", err)
		}
		return nil, apierr.NewUnauthenticated("invalid token")
	}

	c := result.(*claims)
	return &Principal{Subject: c.Subject, Name: c.Name, Email: c.Email}, nil
}

// StaticValidator accepts a fixed, preconfigured map of token -> Principal.
// It is used in tests and in local development when SKIP_AUTH=true.
type StaticValidator struct {
	tokens map[string]*Principal
}

// NewStaticValidator builds a StaticValidator from the given token table.
func NewStaticValidator(tokens map[string]*Principal) *StaticValidator {
	return &StaticValidator{tokens: tokens}
}

// Validate looks up tokenString in the fixed table.
func (v *StaticValidator) Validate(_ context.Context, tokenString string) (*Principal, error) {
	p, ok := v.tokens[tokenString]
	if !ok {
		return nil, apierr.NewUnauthenticated("invalid token")
	}
	return p, nil
}

const principalContextKey = "auth.principal"

// RequireAuth extracts a bearer token from the Authorization header,
// validates it, and stores the resulting Principal on the gin context.
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		principal, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			ae := apierr.Of(err)
			c.AbortWithStatusJSON(ae.HTTPStatus(), gin.H{"error": ae.Message})
			return
		}

		c.Set(principalContextKey, principal)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// FromGinContext returns the Principal attached by RequireAuth, if any.
func FromGinContext(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}
