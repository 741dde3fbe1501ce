// Feedback HTTP handlers.
//
// This file exposes the REST endpoint for rating bot replies:
//   - POST /messages/{id}/feedback  (create feedback)
//
// Ratings run from 1 to 5 with an optional free-text comment; the analytics
// view lists them.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LeaveFeedbackRequest is the JSON payload for rating a message.
//
// The binding tag enforces the 1..5 range at the transport layer; the
// service checks it again.
type LeaveFeedbackRequest struct {
	Rating  int     `json:"rating" binding:"required,min=1,max=5" example:"4"`
	Comment *string `json:"comment,omitempty" example:"Helpful and on topic"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate a bot reply
// @Description Records a 1..5 rating and optional comment for a bot message in one of the caller's conversations. One rating per message and user.
// @Tags        Feedback
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                              true  "Message ID"
// @Param       body  body  handlers.LeaveFeedbackRequest true  "Feedback payload"
// @Success     201  {object}  domain.Feedback
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     403  {object}  handlers.ErrorResponse  "Not allowed to leave feedback"
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Feedback already exists"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal server error"
// @Router      /messages/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		return
	}
	fb, err := h.Feedback.Leave(c.Request.Context(), s, c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusCreated, fb)
}
