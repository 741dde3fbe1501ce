package services

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// ReviewMessage is one message in an admin review. Role is the stored
// sender, unmapped.
type ReviewMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewConversation is a conversation with its messages nested.
type ReviewConversation struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	CreatedAt  time.Time       `json:"created_at"`
	ScenarioID string          `json:"scenario_id"`
	Messages   []ReviewMessage `json:"messages"`
}

// ReviewService lets admins read what users did with a scenario.
type ReviewService struct {
	DB *gorm.DB
}

// UsersForScenario returns the profiles of everyone holding scenarioID.
func (s *ReviewService) UsersForScenario(ctx context.Context, sess *session.Session, scenarioID string) ([]domain.Profile, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	ids, err := repo.AssignedUserIDs(ctx, s.DB, scenarioID)
	if err != nil {
		return nil, err
	}
	return repo.ListProfilesByIDs(ctx, s.DB, ids)
}

// UserConversations returns userID's conversations under scenarioID, newest
// first, each with its messages oldest first.
func (s *ReviewService) UserConversations(ctx context.Context, sess *session.Session, userID, scenarioID string) ([]ReviewConversation, error) {
	ctx, span := otel.Tracer("services/ReviewService").Start(ctx, "UserConversations",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("scenario.id", scenarioID),
		),
	)
	defer span.End()

	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	rows, err := repo.UserConversationRows(ctx, s.DB, userID, scenarioID)
	if err != nil {
		return nil, err
	}
	return NestConversationRows(rows), nil
}

// NestConversationRows regroups the denormalized report rows. A blank title
// falls back to "Chat • <created time>".
func NestConversationRows(rows []repo.UserConversationRow) []ReviewConversation {
	idx := map[string]int{}
	out := []ReviewConversation{}
	for _, r := range rows {
		i, ok := idx[r.ConversationID]
		if !ok {
			title := r.ConversationTitle
			if title == "" {
				title = "Chat • " + r.ConversationCreatedAt.Format(stamp)
			}
			i = len(out)
			idx[r.ConversationID] = i
			out = append(out, ReviewConversation{
				ID:         r.ConversationID,
				Title:      title,
				CreatedAt:  r.ConversationCreatedAt,
				ScenarioID: r.ScenarioID,
				Messages:   []ReviewMessage{},
			})
		}
		if r.MessageID == nil {
			continue
		}
		m := ReviewMessage{ID: *r.MessageID}
		if r.Sender != nil {
			m.Role = *r.Sender
		}
		if r.Content != nil {
			m.Text = *r.Content
		}
		if r.MessageCreatedAt != nil {
			m.CreatedAt = *r.MessageCreatedAt
		}
		out[i].Messages = append(out[i].Messages, m)
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	for i := range out {
		msgs := out[i].Messages
		sort.SliceStable(msgs, func(a, b int) bool { return msgs[a].CreatedAt.Before(msgs[b].CreatedAt) })
	}
	return out
}
