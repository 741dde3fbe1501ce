package services

import (
	"context"
	"math"

	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// Summary is the analytics dashboard.
type Summary struct {
	TotalConversations int               `json:"total_conversations"`
	AvgMessages        float64           `json:"avg_messages"`
	AvgUserMessages    float64           `json:"avg_user_messages"`
	Feedback           []domain.Feedback `json:"feedback"`
}

// AnalyticsService aggregates conversation metrics and feedback.
type AnalyticsService struct {
	DB *gorm.DB
}

// Summary averages message counts over every conversation that has at
// least one message, rounded to one decimal, and lists all feedback newest
// first.
func (s *AnalyticsService) Summary(ctx context.Context, sess *session.Session) (*Summary, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	metrics, err := repo.ConversationMetrics(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	fb, err := repo.ListFeedback(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := &Summary{TotalConversations: len(metrics), Feedback: fb}
	if out.Feedback == nil {
		out.Feedback = []domain.Feedback{}
	}
	if n := len(metrics); n > 0 {
		var total, user int64
		for _, m := range metrics {
			total += m.TotalMessages
			user += m.UserMessages
		}
		out.AvgMessages = round1(float64(total) / float64(n))
		out.AvgUserMessages = round1(float64(user) / float64(n))
	}
	return out, nil
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
