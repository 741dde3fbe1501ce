package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/scenario-chat/internal/session"
)

// CtxUserID is the Gin context key holding the authenticated user id. Rate
// limiting, idempotency and access logs read it.
const CtxUserID = "userID"

const (
	ctxKeySession = "session"
	// tokenCookie is read when no Authorization header is sent.
	tokenCookie = "access_token"
)

// SessionResolver turns a bearer token into a session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*session.Session, error)
}

// BearerToken extracts the token from "Authorization: Bearer <t>", falling
// back to the access_token cookie.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if v, err := c.Cookie(tokenCookie); err == nil {
		return v
	}
	return ""
}

// RequireSession resolves the caller once per request and injects the
// session into both the Gin and the request context. Unauthenticated
// requests get 401 with the login route to navigate to.
func RequireSession(r SessionResolver, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := r.Resolve(c.Request.Context(), BearerToken(c))
		if err != nil || s == nil {
			if err != nil && !errors.Is(err, session.ErrUnauthenticated) {
				LoggerFrom(c).Warn().Err(err).Msg("session resolve failed")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.GetString(requestIDKey),
				"code":       "unauthorized",
				"message":    "sign in required",
				"login":      loginPath,
			})
			return
		}
		c.Set(CtxUserID, s.UserID)
		withUser(c, s.UserID)
		c.Set(ctxKeySession, s)
		c.Request = c.Request.WithContext(session.WithSession(c.Request.Context(), s))
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession, or nil.
func SessionFrom(c *gin.Context) *session.Session {
	if v, ok := c.Get(ctxKeySession); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return session.FromContext(c.Request.Context())
}

// RequireAdmin rejects non-admin sessions with 403. Mount after
// RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !SessionFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.GetString(requestIDKey),
				"code":       "forbidden",
				"message":    "admin role required",
			})
			return
		}
		c.Next()
	}
}
