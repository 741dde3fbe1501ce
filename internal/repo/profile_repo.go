// Package repo implements the data persistence layer for domain entities,
// backed by GORM.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/scenario-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetProfile fetches the profile for an identity id.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureProfile returns the profile for id, creating it with the user role
// when it does not exist yet. An existing role is never changed.
func EnsureProfile(ctx context.Context, db *gorm.DB, id, email string) (*domain.Profile, error) {
	now := time.Now().UTC()
	p := &domain.Profile{ID: id, Email: email, Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return GetProfile(ctx, db, id)
}

// SetRole changes the role of an existing profile.
func SetRole(ctx context.Context, db *gorm.DB, id string, role domain.Role) error {
	res := db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ?", id).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProfilesByRole returns every profile holding role, oldest first.
func ListProfilesByRole(ctx context.Context, db *gorm.DB, role domain.Role) ([]domain.Profile, error) {
	var out []domain.Profile
	err := db.WithContext(ctx).
		Where("role = ?", role).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ListProfilesByIDs returns the profiles whose ids are in ids. Unknown ids are
// skipped silently.
func ListProfilesByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Profile, error) {
	out := []domain.Profile{}
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}
