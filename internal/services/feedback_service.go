package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// FeedbackService records ratings on bot replies.
type FeedbackService struct {
	DB *gorm.DB
}

// Leave rates messageID from 1 to 5 with an optional comment.
//
// Validation:
//   - rating outside 1..5 yields ErrInvalidFeedback.
//   - an unknown message yields ErrMessageNotFound.
//   - a message in someone else's conversation, or one that is not a bot
//     reply, yields ErrForbiddenFeedback.
//   - a second rating of the same message by the same user yields
//     ErrDuplicateFeedback.
//
// The checks and the insert run in one transaction.
func (s *FeedbackService) Leave(ctx context.Context, sess *session.Session, messageID string, rating int, comment *string) (*domain.Feedback, error) {
	if sess == nil {
		return nil, session.ErrUnauthenticated
	}
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidFeedback
	}
	if comment != nil {
		c := strings.TrimSpace(*comment)
		comment = nonEmpty(c)
	}

	var fb *domain.Feedback
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			if isNotFound(err) {
				return ErrMessageNotFound
			}
			return err
		}
		if _, err := repo.GetConversation(ctx, tx, msg.ConversationID, sess.UserID); err != nil {
			if isNotFound(err) {
				return ErrForbiddenFeedback
			}
			return err
		}
		if msg.Sender != domain.SenderBot {
			return ErrForbiddenFeedback
		}
		fb, err = repo.CreateFeedback(ctx, tx, messageID, sess.UserID, rating, comment)
		if err != nil {
			if repo.IsUniqueViolation(err) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
	return fb, err
}
