// Admin HTTP handlers for users, assignments, review and analytics.
//
//   - GET    /admin/users                                           (users with the user role)
//   - GET    /admin/users/{userId}/assignments                      (a user's assignments)
//   - POST   /admin/users/{userId}/assignments                      (assign a scenario)
//   - POST   /admin/users/{userId}/scenarios/{scenarioId}/toggle    (toggle an assignment)
//   - GET    /admin/scenarios/{id}/users                            (users holding a scenario)
//   - GET    /admin/scenarios/{id}/users/{userId}/conversations     (review conversations)
//   - GET    /admin/analytics                                       (averages and feedback)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/services"
)

// AssignRequest names the scenario to assign.
type AssignRequest struct {
	ScenarioID string `json:"scenario_id" binding:"required" example:"0f2a7a3c-8f3b-4f7e-bf0d-5b1e2c3d4e5f"`
}

// ToggleAssignmentResponse reports whether the pair is assigned afterwards.
type ToggleAssignmentResponse struct {
	UserID     string `json:"user_id"`
	ScenarioID string `json:"scenario_id"`
	Assigned   bool   `json:"assigned"`
}

// UsersResponse lists profiles.
type UsersResponse struct {
	Users []domain.Profile `json:"users"`
}

// AssignmentsResponse lists assignments with their scenarios.
type AssignmentsResponse struct {
	Assignments []domain.Assignment `json:"assignments"`
}

// ReviewResponse nests a user's conversations under a scenario.
type ReviewResponse struct {
	Conversations []services.ReviewConversation `json:"conversations"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.UsersResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.Assignments.ListUsers(c.Request.Context(), sess(c))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, UsersResponse{Users: users})
}

// ListUserAssignments godoc
// @ID          listUserAssignments
// @Summary     List a user's assignments
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path  string  true  "User ID"
// @Success     200  {object}  handlers.AssignmentsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/users/{userId}/assignments [get]
func (h *Handlers) ListUserAssignments(c *gin.Context) {
	items, err := h.Assignments.ListForUser(c.Request.Context(), sess(c), c.Param("userId"))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, AssignmentsResponse{Assignments: items})
}

// AssignScenario godoc
// @ID          assignScenario
// @Summary     Assign a scenario
// @Description Always inserts a new assignment, making the scenario the user's most recent one.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       userId  path  string                  true  "User ID"
// @Param       body    body  handlers.AssignRequest  true  "Scenario to assign"
// @Success     201  {object}  domain.Assignment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     404  {object}  handlers.ErrorResponse  "Scenario not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/users/{userId}/assignments [post]
func (h *Handlers) AssignScenario(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scenario_id required")
		return
	}
	a, err := h.Assignments.Assign(c.Request.Context(), sess(c), c.Param("userId"), req.ScenarioID)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, a)
}

// ToggleAssignment godoc
// @ID          toggleAssignment
// @Summary     Toggle an assignment
// @Description Assigns the scenario when the user has no assignment for it, otherwise removes it. Two calls in a row restore the original state.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       userId      path  string  true  "User ID"
// @Param       scenarioId  path  string  true  "Scenario ID"
// @Success     200  {object}  handlers.ToggleAssignmentResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     404  {object}  handlers.ErrorResponse  "Scenario not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/users/{userId}/scenarios/{scenarioId}/toggle [post]
func (h *Handlers) ToggleAssignment(c *gin.Context) {
	userID, scenarioID := c.Param("userId"), c.Param("scenarioId")
	assigned, err := h.Assignments.Toggle(c.Request.Context(), sess(c), userID, scenarioID)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, ToggleAssignmentResponse{UserID: userID, ScenarioID: scenarioID, Assigned: assigned})
}

// ScenarioUsers godoc
// @ID          scenarioUsers
// @Summary     Users holding a scenario
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Scenario ID"
// @Success     200  {object}  handlers.UsersResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios/{id}/users [get]
func (h *Handlers) ScenarioUsers(c *gin.Context) {
	users, err := h.Review.UsersForScenario(c.Request.Context(), sess(c), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, UsersResponse{Users: users})
}

// ReviewConversations godoc
// @ID          reviewConversations
// @Summary     Review a user's conversations
// @Description Returns the user's conversations under the scenario, newest first, each with its messages oldest first.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id      path  string  true  "Scenario ID"
// @Param       userId  path  string  true  "User ID"
// @Success     200  {object}  handlers.ReviewResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios/{id}/users/{userId}/conversations [get]
func (h *Handlers) ReviewConversations(c *gin.Context) {
	convs, err := h.Review.UserConversations(c.Request.Context(), sess(c), c.Param("userId"), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ReviewResponse{Conversations: convs})
}

// GetAnalytics godoc
// @ID          getAnalytics
// @Summary     Usage analytics
// @Description Average total and user messages per conversation, and every feedback entry newest first.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Summary
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/analytics [get]
func (h *Handlers) GetAnalytics(c *gin.Context) {
	sum, err := h.Analytics.Summary(c.Request.Context(), sess(c))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, sum)
}
