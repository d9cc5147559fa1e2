package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	identityContextKey  = "auth_identity"
	authTokenContextKey = "auth_token"
)

type identityCtxKey struct{}

// Middleware verifies the bearer token or auth cookie when one is present and
// stores the identity in the gin and request contexts. Requests without a
// valid token pass through unauthenticated; handlers decide how strict to be.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.Next()
			return
		}
		identity, err := s.VerifyToken(c.Request.Context(), authToken)
		if err != nil {
			c.Next()
			return
		}
		c.Set(identityContextKey, identity)
		c.Set(authTokenContextKey, authToken)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

// IdentityFromContext retrieves the verified identity from the gin context.
func IdentityFromContext(c *gin.Context) (*Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return nil, false
	}
	identity, ok := val.(*Identity)
	return identity, ok && identity != nil
}

// AuthTokenFromContext retrieves the raw token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// WithIdentity attaches an identity to a plain context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, identity)
}

// IdentityFrom returns the identity attached to ctx, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return identity
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
