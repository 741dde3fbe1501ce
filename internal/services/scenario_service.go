package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// ScenarioService manages the scenario library. Reads are open to any
// session; mutations require the admin role.
type ScenarioService struct {
	DB *gorm.DB
}

// List returns scenarios newest first, filtered by a case-insensitive
// substring match of q over title and content.
func (s *ScenarioService) List(ctx context.Context, q string) ([]domain.Scenario, error) {
	ctx, span := otel.Tracer("services/ScenarioService").Start(ctx, "List")
	defer span.End()

	all, err := repo.ListScenarios(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Scenario, 0, len(all))
	for _, sc := range all {
		if matchesQuery(q, sc.Title, sc.Content) {
			out = append(out, sc)
		}
	}
	return out, nil
}

// Get returns one scenario.
func (s *ScenarioService) Get(ctx context.Context, id string) (*domain.Scenario, error) {
	sc, err := repo.GetScenario(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrScenarioNotFound
		}
		return nil, err
	}
	return sc, nil
}

// Create stores a new scenario. Title and content are trimmed and both must
// be non-empty.
func (s *ScenarioService) Create(ctx context.Context, sess *session.Session, title, content string) (*domain.Scenario, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, ErrInvalidScenario
	}
	return repo.CreateScenario(ctx, s.DB, title, content)
}

// Update replaces title and content of an existing scenario.
func (s *ScenarioService) Update(ctx context.Context, sess *session.Session, id, title, content string) (*domain.Scenario, error) {
	if !sess.IsAdmin() {
		return nil, ErrForbidden
	}
	title, content = strings.TrimSpace(title), strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, ErrInvalidScenario
	}
	if err := repo.UpdateScenario(ctx, s.DB, id, title, content); err != nil {
		if isNotFound(err) {
			return nil, ErrScenarioNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a scenario together with every assignment that references
// it, atomically. Conversations started under those assignments keep their
// dangling reference and are grouped under the generic "Scenario" title.
func (s *ScenarioService) Delete(ctx context.Context, sess *session.Session, id string) error {
	ctx, span := otel.Tracer("services/ScenarioService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("scenario.id", id)),
	)
	defer span.End()

	if !sess.IsAdmin() {
		return ErrForbidden
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.DeleteScenarioAssignments(ctx, tx, id)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int64("assignments.deleted", n))
		if err := repo.DeleteScenario(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrScenarioNotFound
			}
			return err
		}
		return nil
	})
}

// customScenarioTitle names scenarios created from the chat view editor.
const customScenarioTitle = "Custom scenario"

// EditCurrent saves an admin's edit of the prompt in effect. With an
// assignment id the referenced scenario's content is replaced. Without one a
// new scenario is created and assigned to the admin, so it becomes their
// current scenario. The returned resolution reflects the saved state.
func (s *ScenarioService) EditCurrent(ctx context.Context, sess *session.Session, assignmentID *string, content string) (Resolution, error) {
	if !sess.IsAdmin() {
		return Resolution{}, ErrForbidden
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Resolution{}, ErrInvalidScenario
	}

	var a *domain.Assignment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if assignmentID != nil && *assignmentID != "" {
			cur, err := repo.GetAssignment(ctx, tx, *assignmentID)
			if err != nil {
				if isNotFound(err) {
					return ErrAssignmentNotFound
				}
				return err
			}
			if err := repo.UpdateScenarioContent(ctx, tx, cur.ScenarioID, content); err != nil {
				if isNotFound(err) {
					return ErrScenarioNotFound
				}
				return err
			}
			a, err = repo.GetAssignment(ctx, tx, cur.ID)
			return err
		}
		sc, err := repo.CreateScenario(ctx, tx, customScenarioTitle, content)
		if err != nil {
			return err
		}
		created, err := repo.CreateAssignment(ctx, tx, sess.UserID, sc.ID)
		if err != nil {
			return err
		}
		created.Scenario = sc
		a = created
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}
	return fromAssignment(a), nil
}
