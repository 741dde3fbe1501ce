// Scenario library HTTP handlers (admin).
//
//   - GET    /admin/scenarios        (list, search, paginated)
//   - POST   /admin/scenarios        (create)
//   - GET    /admin/scenarios/{id}   (read)
//   - PUT    /admin/scenarios/{id}   (update)
//   - DELETE /admin/scenarios/{id}   (delete, with its assignments)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/utils"
)

// ScenarioRequest is the create/update payload.
type ScenarioRequest struct {
	Title   string `json:"title" binding:"required,max=255" example:"Difficult customer"`
	Content string `json:"content" binding:"required" example:"You are an impatient customer whose order is late."`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// ListScenariosResponse is one page of matching scenarios.
type ListScenariosResponse struct {
	Scenarios  []domain.Scenario `json:"scenarios"`
	Pagination Pagination        `json:"pagination"`
}

// ListScenarios godoc
// @ID          listScenarios
// @Summary     List scenarios
// @Description Returns scenarios newest first, filtered by a case-insensitive substring match over title and content.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       q          query  string  false  "Search text"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(200) default(50)
// @Success     200  {object}  handlers.ListScenariosResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios [get]
func (h *Handlers) ListScenarios(c *gin.Context) {
	all, err := h.Scenarios.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	page, size := utils.ClampPage(c.Query("page"), c.Query("page_size"), 50, 200)
	start, end := utils.PageBounds(len(all), page, size)
	pages := utils.TotalPages(len(all), size)
	ok(c, http.StatusOK, ListScenariosResponse{
		Scenarios: all[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      len(all),
			TotalPages: pages,
			HasNext:    page < pages,
		},
	})
}

// GetScenario godoc
// @ID          getScenario
// @Summary     Get a scenario
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Scenario ID"
// @Success     200  {object}  domain.Scenario
// @Failure     404  {object}  handlers.ErrorResponse  "Scenario not found"
// @Router      /admin/scenarios/{id} [get]
func (h *Handlers) GetScenario(c *gin.Context) {
	sc, err := h.Scenarios.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, sc)
}

// CreateScenario godoc
// @ID          createScenario
// @Summary     Create a scenario
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.ScenarioRequest  true  "Scenario"
// @Success     201  {object}  domain.Scenario
// @Failure     400  {object}  handlers.ErrorResponse  "Title and content required"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios [post]
func (h *Handlers) CreateScenario(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	var req ScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and content are required")
		return
	}
	sc, err := h.Scenarios.Create(c.Request.Context(), s, req.Title, req.Content)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, sc)
}

// UpdateScenario godoc
// @ID          updateScenario
// @Summary     Update a scenario
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                    true  "Scenario ID"
// @Param       body  body  handlers.ScenarioRequest  true  "Scenario"
// @Success     200  {object}  domain.Scenario
// @Failure     400  {object}  handlers.ErrorResponse  "Title and content required"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     404  {object}  handlers.ErrorResponse  "Scenario not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios/{id} [put]
func (h *Handlers) UpdateScenario(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	var req ScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and content are required")
		return
	}
	sc, err := h.Scenarios.Update(c.Request.Context(), s, c.Param("id"), req.Title, req.Content)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, sc)
}

// DeleteScenario godoc
// @ID          deleteScenario
// @Summary     Delete a scenario
// @Description Deletes the scenario and every assignment that references it.
// @Tags        Admin
// @Security    BearerAuth
// @Param       id  path  string  true  "Scenario ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     404  {object}  handlers.ErrorResponse  "Scenario not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios/{id} [delete]
func (h *Handlers) DeleteScenario(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	if err := h.Scenarios.Delete(c.Request.Context(), s, c.Param("id")); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}
