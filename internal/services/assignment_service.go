package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// AssignmentService links users to scenarios. Every method is admin-only
// except MyScenarios.
type AssignmentService struct {
	DB *gorm.DB
}

// ListUsers returns every profile with the user role.
func (s *AssignmentService) ListUsers(ctx context.Context, sess *session.Session) ([]domain.Profile, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	return repo.ListProfilesByRole(ctx, s.DB, domain.RoleUser)
}

// ListForUser returns userID's assignments, newest first.
func (s *AssignmentService) ListForUser(ctx context.Context, sess *session.Session, userID string) ([]domain.Assignment, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	return repo.ListAssignmentsForUser(ctx, s.DB, userID)
}

// Assign always inserts a new assignment, so the scenario becomes the user's
// most recent one even when it was assigned before.
func (s *AssignmentService) Assign(ctx context.Context, sess *session.Session, userID, scenarioID string) (*domain.Assignment, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	var out *domain.Assignment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetScenario(ctx, tx, scenarioID); err != nil {
			if isNotFound(err) {
				return ErrScenarioNotFound
			}
			return err
		}
		a, err := repo.CreateAssignment(ctx, tx, userID, scenarioID)
		out = a
		return err
	})
	return out, err
}

// Toggle inserts an assignment when (userID, scenarioID) has none and
// removes all of them otherwise. It reports whether the pair is assigned
// afterwards, so two calls in a row restore the original state.
func (s *AssignmentService) Toggle(ctx context.Context, sess *session.Session, userID, scenarioID string) (bool, error) {
	ctx, span := otel.Tracer("services/AssignmentService").Start(ctx, "Toggle",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("scenario.id", scenarioID),
		),
	)
	defer span.End()

	if !sess.IsAdmin() {
		return false, ErrForbidden
	}
	var assigned bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := repo.FindAssignment(ctx, tx, userID, scenarioID)
		switch {
		case err == nil:
			_, err = repo.DeleteUserScenarioAssignments(ctx, tx, userID, scenarioID)
			assigned = false
			return err
		case isNotFound(err):
			if _, err := repo.GetScenario(ctx, tx, scenarioID); err != nil {
				if isNotFound(err) {
					return ErrScenarioNotFound
				}
				return err
			}
			_, err = repo.CreateAssignment(ctx, tx, userID, scenarioID)
			assigned = err == nil
			return err
		default:
			return err
		}
	})
	return assigned, err
}

// MyScenarios lists the caller's assigned scenarios, one entry per scenario
// (the most recent assignment wins), filtered by q over title and content.
// Assignments whose scenario no longer exists are skipped.
func (s *AssignmentService) MyScenarios(ctx context.Context, sess *session.Session, q string) ([]domain.Assignment, error) {
	if sess == nil {
		return nil, session.ErrUnauthenticated
	}
	all, err := repo.ListAssignmentsForUser(ctx, s.DB, sess.UserID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(all))
	out := make([]domain.Assignment, 0, len(all))
	for _, a := range all {
		if a.Scenario == nil || seen[a.ScenarioID] {
			continue
		}
		seen[a.ScenarioID] = true
		if matchesQuery(q, a.Scenario.Title, a.Scenario.Content) {
			out = append(out, a)
		}
	}
	return out, nil
}
