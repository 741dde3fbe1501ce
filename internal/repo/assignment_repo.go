package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// CreateAssignment links userID to scenarioID. Duplicates are allowed.
func CreateAssignment(ctx context.Context, db *gorm.DB, userID, scenarioID string) (*domain.Assignment, error) {
	a := &domain.Assignment{
		ID:         uuid.NewString(),
		UserID:     userID,
		ScenarioID: scenarioID,
		AssignedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssignment fetches an assignment with its scenario preloaded. The
// Scenario field is nil when the scenario row is gone.
func GetAssignment(ctx context.Context, db *gorm.DB, id string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := db.WithContext(ctx).
		Preload("Scenario").
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestAssignment returns the most recently assigned scenario for userID.
func LatestAssignment(ctx context.Context, db *gorm.DB, userID string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := db.WithContext(ctx).
		Preload("Scenario").
		Where("user_id = ?", userID).
		Order("assigned_at desc, id desc").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignmentsForUser returns userID's assignments, newest first, with
// scenarios preloaded.
func ListAssignmentsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Assignment, error) {
	var out []domain.Assignment
	err := db.WithContext(ctx).
		Preload("Scenario").
		Where("user_id = ?", userID).
		Order("assigned_at desc, id desc").
		Find(&out).Error
	return out, err
}

// ListAssignmentsByIDs batch-loads assignments (with scenarios) by id.
func ListAssignmentsByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Assignment, error) {
	out := []domain.Assignment{}
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Preload("Scenario").
		Where("id IN ?", ids).
		Find(&out).Error
	return out, err
}

// FindAssignment returns one assignment of scenarioID to userID, if any.
func FindAssignment(ctx context.Context, db *gorm.DB, userID, scenarioID string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := db.WithContext(ctx).
		Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
		Order("assigned_at desc, id desc").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteUserScenarioAssignments removes every assignment of scenarioID to
// userID and reports how many rows went.
func DeleteUserScenarioAssignments(ctx context.Context, db *gorm.DB, userID, scenarioID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ? AND scenario_id = ?", userID, scenarioID).
		Delete(&domain.Assignment{})
	return res.RowsAffected, res.Error
}

// DeleteScenarioAssignments removes every assignment pointing at scenarioID.
func DeleteScenarioAssignments(ctx context.Context, db *gorm.DB, scenarioID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("scenario_id = ?", scenarioID).
		Delete(&domain.Assignment{})
	return res.RowsAffected, res.Error
}

// AssignedUserIDs returns the distinct user ids holding scenarioID.
func AssignedUserIDs(ctx context.Context, db *gorm.DB, scenarioID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Assignment{}).
		Where("scenario_id = ?", scenarioID).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}
