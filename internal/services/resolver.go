package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
)

// Query names the scenario a chat view was opened with. Both fields are
// optional.
type Query struct {
	// ScenarioID is an assignment id.
	ScenarioID string `json:"scenarioId"`
	// DemoScenarioID is a raw scenario id; honored for admins only.
	DemoScenarioID string `json:"demoScenarioId"`
}

// Resolution is the system prompt in effect for a chat. Nil fields mean
// "none": the assistant then runs without a preamble.
type Resolution struct {
	SystemPrompt  *string `json:"system_prompt"`
	ScenarioTitle *string `json:"scenario_title"`
	// AssignmentID is the assignment the prompt came from. It is what new
	// conversations link to and what admin edits target.
	AssignmentID *string `json:"scenario_id"`
	IsDemo       bool    `json:"is_demo"`
	// DemoScenarioID is the previewed scenario in demo mode.
	DemoScenarioID string `json:"demo_scenario_id,omitempty"`
}

// Prompt returns the system prompt or "".
func (r Resolution) Prompt() string {
	if r.SystemPrompt == nil {
		return ""
	}
	return *r.SystemPrompt
}

// Title returns the scenario title or "".
func (r Resolution) Title() string {
	if r.ScenarioTitle == nil {
		return ""
	}
	return *r.ScenarioTitle
}

// ScenarioResolver decides which scenario applies to a chat view. Fetch
// errors never fail the request: they are logged and yield an empty
// resolution.
type ScenarioResolver struct {
	DB *gorm.DB
}

// Resolve picks, in order: the demo scenario (admins only), the requested
// assignment, or the caller's most recent assignment.
func (r *ScenarioResolver) Resolve(ctx context.Context, sess *session.Session, q Query) Resolution {
	ctx, span := otel.Tracer("services/ScenarioResolver").Start(ctx, "Resolve")
	defer span.End()

	if q.DemoScenarioID != "" && sess.IsAdmin() {
		res := Resolution{IsDemo: true, DemoScenarioID: q.DemoScenarioID}
		sc, err := repo.GetScenario(ctx, r.DB, q.DemoScenarioID)
		if err != nil {
			log.Warn().Err(err).Str("scenario_id", q.DemoScenarioID).Msg("demo scenario lookup failed")
			return res
		}
		res.SystemPrompt = nonEmpty(sc.Content)
		res.ScenarioTitle = nonEmpty(sc.Title)
		return res
	}
	if q.ScenarioID != "" {
		return r.ForAssignment(ctx, q.ScenarioID)
	}
	if sess == nil {
		return Resolution{}
	}
	a, err := repo.LatestAssignment(ctx, r.DB, sess.UserID)
	if err != nil {
		if !isNotFound(err) {
			log.Warn().Err(err).Str("user_id", sess.UserID).Msg("latest assignment lookup failed")
		}
		return Resolution{}
	}
	return fromAssignment(a)
}

// ForAssignment resolves the scenario behind one assignment id.
func (r *ScenarioResolver) ForAssignment(ctx context.Context, assignmentID string) Resolution {
	a, err := repo.GetAssignment(ctx, r.DB, assignmentID)
	if err != nil {
		log.Warn().Err(err).Str("assignment_id", assignmentID).Msg("assignment lookup failed")
		return Resolution{}
	}
	return fromAssignment(a)
}

func fromAssignment(a *domain.Assignment) Resolution {
	id := a.ID
	res := Resolution{AssignmentID: &id}
	if a.Scenario != nil {
		res.SystemPrompt = nonEmpty(a.Scenario.Content)
		res.ScenarioTitle = nonEmpty(a.Scenario.Title)
	}
	return res
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
