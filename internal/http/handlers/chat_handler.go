// Chat view HTTP handlers.
//
// This file exposes the endpoints behind the chat page:
//   - GET    /session                           (identity, role and landing route)
//   - GET    /chat/scenario                     (resolve the system prompt in effect)
//   - PUT    /chat/scenario                     (admin: edit the prompt in effect)
//   - GET    /me/scenarios                      (the caller's assigned scenarios)
//   - GET    /conversations                     (sidebar list, grouped by scenario)
//   - POST   /conversations                     (start a conversation)
//   - GET    /conversations/{id}                (open a conversation, ETag support)
//   - DELETE /conversations/{id}/messages       (clear a conversation)
//   - POST   /conversation-groups/{key}/toggle  (expand/collapse one sidebar group)
package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/services"
)

//
// DTOs
//

// SessionResponse describes the caller.
type SessionResponse struct {
	UserID   string      `json:"user_id" example:"8c1f6a3e-0d4b-4a8e-9a55-0f5f3c1d2b7a"`
	Email    string      `json:"email" example:"jane@example.com"`
	FullName string      `json:"full_name,omitempty" example:"Jane Doe"`
	Role     domain.Role `json:"role" example:"user"`
	IsAdmin  bool        `json:"is_admin" example:"false"`
	// Home is where the client should navigate for this role.
	Home string `json:"home" example:"/chat"`
}

// EditScenarioRequest replaces the text of the prompt in effect.
type EditScenarioRequest struct {
	// ScenarioID is the assignment the prompt came from. Empty creates a new
	// scenario assigned to the caller.
	ScenarioID *string `json:"scenario_id" example:"4b7c1f9e-2a33-4c52-9a61-1d0f7e8b2c10"`
	Content    string  `json:"content" binding:"required" example:"You are a patient hiring manager."`
}

// NewConversationRequest names the scenario to start under. Both fields are
// optional; the caller's latest assignment is used otherwise.
type NewConversationRequest struct {
	ScenarioID     string `json:"scenarioId" example:"4b7c1f9e-2a33-4c52-9a61-1d0f7e8b2c10"`
	DemoScenarioID string `json:"demoScenarioId" example:""`
}

// NewConversationResponse is the created conversation and its scenario.
type NewConversationResponse struct {
	Conversation services.ConversationItem `json:"conversation"`
	Scenario     services.Resolution       `json:"scenario"`
}

// ToggleGroupResponse reports the new state of a sidebar group.
type ToggleGroupResponse struct {
	Key      string `json:"key" example:"__none__"`
	Expanded bool   `json:"expanded" example:"false"`
}

// MyScenariosResponse lists the caller's assigned scenarios.
type MyScenariosResponse struct {
	Assignments []domain.Assignment `json:"assignments"`
}

//
// Helpers
//

// writeWithETag serves body with a weak ETag derived from its JSON encoding
// and answers 304 when the client already holds it.
func writeWithETag(c *gin.Context, prefix string, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	sum := sha256.Sum256(raw)
	etag := `W/"` + prefix + ":" + hex.EncodeToString(sum[:8]) + `"`
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

//
// Handlers
//

// GetSession godoc
// @ID          getSession
// @Summary     Current session
// @Description Returns the caller's identity and role, and the landing route for that role.
// @Tags        Session
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.SessionResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Router      /session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	ok(c, http.StatusOK, SessionResponse{
		UserID:   s.UserID,
		Email:    s.Email,
		FullName: s.FullName,
		Role:     s.Role,
		IsAdmin:  s.IsAdmin(),
		Home:     s.Home(),
	})
}

// ResolveScenario godoc
// @ID          resolveScenario
// @Summary     Resolve the chat scenario
// @Description Picks the system prompt for the chat view: the demo scenario (admins only), the given assignment, or the caller's most recent assignment. Lookup failures yield an empty resolution.
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       scenarioId      query  string  false  "Assignment ID"
// @Param       demoScenarioId  query  string  false  "Scenario ID to preview (admins only)"
// @Success     200  {object}  services.Resolution
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Router      /chat/scenario [get]
func (h *Handlers) ResolveScenario(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	q := services.Query{
		ScenarioID:     c.Query("scenarioId"),
		DemoScenarioID: c.Query("demoScenarioId"),
	}
	ok(c, http.StatusOK, h.Resolver.Resolve(c.Request.Context(), s, q))
}

// EditScenario godoc
// @ID          editScenario
// @Summary     Edit the prompt in effect
// @Description Admin only. Saves new content for the scenario behind an assignment, or creates and assigns a new scenario when no assignment is given.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.EditScenarioRequest  true  "New prompt"
// @Success     200  {object}  services.Resolution
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     404  {object}  handlers.ErrorResponse  "Assignment not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/scenario [put]
func (h *Handlers) EditScenario(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	var req EditScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	res, err := h.Scenarios.EditCurrent(c.Request.Context(), s, req.ScenarioID, req.Content)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, res)
}

// MyScenarios godoc
// @ID          myScenarios
// @Summary     List my scenarios
// @Description Returns the caller's assigned scenarios, most recent assignment per scenario, filtered by a case-insensitive match over title and content.
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       q  query  string  false  "Search text"
// @Success     200  {object}  handlers.MyScenariosResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /me/scenarios [get]
func (h *Handlers) MyScenarios(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	items, err := h.Assignments.MyScenarios(c.Request.Context(), s, c.Query("q"))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, MyScenariosResponse{Assignments: items})
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the caller's conversations newest first, plus the same items grouped by scenario ("No scenario" last) with each group's expansion state.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Listing
// @Failure     401  {object}  handlers.ErrorResponse  "Sign in required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	l, err := h.Conversations.Load(c.Request.Context(), s)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, l)
}

// CreateConversation godoc
// @ID          createConversation
// @Summary     Start a conversation
// @Description Starts a conversation under the resolved scenario. Demo scenarios produce a conversation that is never persisted.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.NewConversationRequest  false  "Scenario to start under"
// @Success     201  {object}  handlers.NewConversationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	var req NewConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	ctx := c.Request.Context()
	res := h.Resolver.Resolve(ctx, s, services.Query{ScenarioID: req.ScenarioID, DemoScenarioID: req.DemoScenarioID})
	conv, err := h.Conversations.New(ctx, s, res)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, NewConversationResponse{Conversation: conv, Scenario: res})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Open a conversation
// @Description Returns the conversation, its refreshed scenario and its messages oldest first. Supports weak ETag via If-None-Match.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Conversation ID"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  services.Thread
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	id := c.Param("id")
	t, err := h.Conversations.Select(c.Request.Context(), s, id)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	writeWithETag(c, "conversation:"+id, t)
}

// ClearConversation godoc
// @ID          clearConversation
// @Summary     Clear a conversation
// @Description Deletes every message of the conversation. Demo conversations are cleared in memory only.
// @Tags        Conversations
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [delete]
func (h *Handlers) ClearConversation(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	if err := h.Conversations.Clear(c.Request.Context(), s, c.Param("id")); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}

// ToggleGroup godoc
// @ID          toggleGroup
// @Summary     Expand or collapse a sidebar group
// @Description Flips the expansion state of one group; other groups keep theirs.
// @Tags        Conversations
// @Produce     json
// @Security    BearerAuth
// @Param       key  path  string  true  "Group key (assignment id, __none__ or __demo__)"
// @Success     200  {object}  handlers.ToggleGroupResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversation-groups/{key}/toggle [post]
func (h *Handlers) ToggleGroup(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	key := c.Param("key")
	expanded, err := h.Conversations.ToggleGroup(c.Request.Context(), s, key)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, ToggleGroupResponse{Key: key, Expanded: expanded})
}
