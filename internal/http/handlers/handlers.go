// Package handlers exposes the JSON API for the chat and admin views.
//
// Handlers are transport-thin: they bind and validate input, read the
// session that middleware.RequireSession resolved, call a service and map
// service errors to the ErrorResponse envelope.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/http/middleware"
	"github.com/tbourn/scenario-chat/internal/services"
	"github.com/tbourn/scenario-chat/internal/session"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

//
// Service contracts (context-aware)
//

// ScenarioService manages the scenario library and the admin's in-chat edit.
type ScenarioService interface {
	List(ctx context.Context, q string) ([]domain.Scenario, error)
	Get(ctx context.Context, id string) (*domain.Scenario, error)
	Create(ctx context.Context, sess *session.Session, title, content string) (*domain.Scenario, error)
	Update(ctx context.Context, sess *session.Session, id, title, content string) (*domain.Scenario, error)
	Delete(ctx context.Context, sess *session.Session, id string) error
	EditCurrent(ctx context.Context, sess *session.Session, assignmentID *string, content string) (services.Resolution, error)
}

// AssignmentService links users to scenarios.
type AssignmentService interface {
	ListUsers(ctx context.Context, sess *session.Session) ([]domain.Profile, error)
	ListForUser(ctx context.Context, sess *session.Session, userID string) ([]domain.Assignment, error)
	Assign(ctx context.Context, sess *session.Session, userID, scenarioID string) (*domain.Assignment, error)
	Toggle(ctx context.Context, sess *session.Session, userID, scenarioID string) (bool, error)
	MyScenarios(ctx context.Context, sess *session.Session, q string) ([]domain.Assignment, error)
}

// ScenarioResolver decides the system prompt of a chat view.
type ScenarioResolver interface {
	Resolve(ctx context.Context, sess *session.Session, q services.Query) services.Resolution
}

// ConversationService lists, opens, creates and clears conversations.
type ConversationService interface {
	Load(ctx context.Context, sess *session.Session) (*services.Listing, error)
	ToggleGroup(ctx context.Context, sess *session.Session, key string) (bool, error)
	Select(ctx context.Context, sess *session.Session, id string) (*services.Thread, error)
	Messages(ctx context.Context, sess *session.Session, id string) (services.ConversationItem, services.Resolution, []domain.Message, error)
	New(ctx context.Context, sess *session.Session, res services.Resolution) (services.ConversationItem, error)
	Clear(ctx context.Context, sess *session.Session, id string) error
}

// ExchangeService runs a user turn and accepts asynchronous replies.
type ExchangeService interface {
	Send(ctx context.Context, sess *session.Session, in services.SendInput) (*services.SendResult, error)
	HandleCallback(ctx context.Context, cb webhook.Callback) (*domain.Message, error)
}

// FeedbackService records ratings of bot replies.
type FeedbackService interface {
	Leave(ctx context.Context, sess *session.Session, messageID string, rating int, comment *string) (*domain.Feedback, error)
}

// ReviewService reads users' conversations for admins.
type ReviewService interface {
	UsersForScenario(ctx context.Context, sess *session.Session, scenarioID string) ([]domain.Profile, error)
	UserConversations(ctx context.Context, sess *session.Session, userID, scenarioID string) ([]services.ReviewConversation, error)
}

// AnalyticsService summarizes usage.
type AnalyticsService interface {
	Summary(ctx context.Context, sess *session.Session) (*services.Summary, error)
}

//
// Handler wiring
//

// Deps is everything the handlers need. DB backs idempotent replays and
// list ETags; it may be nil, which disables both.
type Deps struct {
	DB            *gorm.DB
	Scenarios     ScenarioService
	Assignments   AssignmentService
	Resolver      ScenarioResolver
	Conversations ConversationService
	Exchange      ExchangeService
	Feedback      FeedbackService
	Review        ReviewService
	Analytics     AnalyticsService

	// ReplyMode labels reply metrics ("sync" or "async").
	ReplyMode string
	// WebhookSecret guards the reply callback.
	WebhookSecret string
	// IdempotencyTTL is how long a completed turn can be replayed.
	IdempotencyTTL time.Duration
	// MaxPromptRunes is reported in "too long" errors.
	MaxPromptRunes int

	Now func() time.Time
}

// Handlers groups every endpoint.
type Handlers struct {
	Deps
}

// New binds the handlers to their collaborators.
func New(d Deps) *Handlers {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.IdempotencyTTL <= 0 {
		d.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{Deps: d}
}

// sess returns the resolved caller. Routes are mounted behind
// RequireSession, so nil only happens when wiring is wrong; it is answered
// with 401.
func sess(c *gin.Context) *session.Session {
	s := middleware.SessionFrom(c)
	if s == nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required")
	}
	return s
}

// failService maps a service error to a response. Unknown errors are 500
// with the given code.
func failService(c *gin.Context, err error, code string) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required")
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrForbiddenFeedback):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrScenarioNotFound),
		errors.Is(err, services.ErrAssignmentNotFound),
		errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidScenario),
		errors.Is(err, services.ErrInvalidFeedback),
		errors.Is(err, services.ErrBadCallback):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrDuplicateFeedback):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, code, err.Error())
	}
}
