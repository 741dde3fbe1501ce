package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// CreateScenario inserts a scenario with a fresh UUID.
func CreateScenario(ctx context.Context, db *gorm.DB, title, content string) (*domain.Scenario, error) {
	now := time.Now().UTC()
	s := &domain.Scenario{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// ListScenarios returns all scenarios, newest first.
func ListScenarios(ctx context.Context, db *gorm.DB) ([]domain.Scenario, error) {
	var out []domain.Scenario
	err := db.WithContext(ctx).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// GetScenario fetches a scenario by id.
func GetScenario(ctx context.Context, db *gorm.DB, id string) (*domain.Scenario, error) {
	var s domain.Scenario
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateScenario replaces title and content. ErrNotFound when id is unknown.
func UpdateScenario(ctx context.Context, db *gorm.DB, id, title, content string) error {
	return updateScenario(ctx, db, id, map[string]any{
		"title":      title,
		"content":    content,
		"updated_at": time.Now().UTC(),
	})
}

// UpdateScenarioContent replaces only the prompt text.
func UpdateScenarioContent(ctx context.Context, db *gorm.DB, id, content string) error {
	return updateScenario(ctx, db, id, map[string]any{
		"content":    content,
		"updated_at": time.Now().UTC(),
	})
}

func updateScenario(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Scenario{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScenario removes a scenario row. Assignments must be removed first.
func DeleteScenario(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Scenario{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
