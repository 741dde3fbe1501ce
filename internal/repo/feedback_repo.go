package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// CreateFeedback inserts a rating for the given message and user.
//
// The combination (message_id, user_id) must be unique, enforced by the
// database schema. A duplicate surfaces as the raw driver error; the service
// layer translates it into ErrDuplicateFeedback.
func CreateFeedback(ctx context.Context, db *gorm.DB, messageID, userID string, rating int, comment *string) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

// ListFeedback returns every feedback entry, newest first.
func ListFeedback(ctx context.Context, db *gorm.DB) ([]domain.Feedback, error) {
	var out []domain.Feedback
	err := db.WithContext(ctx).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}
