// Package session resolves the caller of a request: it verifies the bearer
// token issued by the auth provider, loads the caller's profile to determine
// the role, and carries the result through the request context.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
)

// ErrUnauthenticated is returned when no valid identity could be established.
var ErrUnauthenticated = errors.New("unauthenticated")

// Home routes for each role.
const (
	AdminHome = "/admin/dashboard"
	UserHome  = "/chat"
)

// Identity is what the auth provider vouches for.
type Identity struct {
	UserID string
	Email  string
}

// Session is the resolved caller. Role defaults to user when the profile could
// not be read, so IsAdmin fails closed.
type Session struct {
	Identity
	FullName string
	Role     domain.Role
}

// IsAdmin reports whether admin-only actions are allowed.
func (s *Session) IsAdmin() bool { return s != nil && s.Role == domain.RoleAdmin }

// Home is the landing route for the caller's role.
func (s *Session) Home() string {
	if s.IsAdmin() {
		return AdminHome
	}
	return UserHome
}

// Resolver turns bearer tokens into sessions. One Resolver is built at
// start-up and shared by every request.
type Resolver struct {
	DB       *gorm.DB
	Verifier *Verifier
}

// NewResolver wires a Resolver.
func NewResolver(db *gorm.DB, v *Verifier) *Resolver {
	return &Resolver{DB: db, Verifier: v}
}

// Resolve verifies token and loads the role. A profile that does not exist
// yet is created with the user role. Any other profile error is logged and
// swallowed: the session is still returned, without admin rights.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	id, err := r.Verifier.Verify(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	s := &Session{Identity: id, Role: domain.RoleUser}
	p, err := repo.EnsureProfile(ctx, r.DB, id.UserID, id.Email)
	if err != nil {
		log.Warn().Err(err).Str("user_id", id.UserID).Msg("profile lookup failed; continuing without admin rights")
		return s, nil
	}
	s.Role = p.Role
	if p.FullName != nil {
		s.FullName = *p.FullName
	}
	return s, nil
}

type ctxKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession, or nil.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(ctxKey{}).(*Session); ok {
		return s
	}
	return nil
}
