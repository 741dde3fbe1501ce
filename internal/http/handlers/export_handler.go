// Export HTTP handlers.
//
//   - GET /conversations/{id}/export/csv                                       (own conversation as CSV)
//   - GET /conversations/{id}/export/pdf                                       (own conversation as PDF)
//   - GET /admin/scenarios/{id}/users/{userId}/conversations/{convId}/csv      (reviewed conversation as CSV)
package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/export"
	"github.com/tbourn/scenario-chat/internal/http/middleware"
	"github.com/tbourn/scenario-chat/internal/services"
)

const csvContentType = "text/csv; charset=utf-8"

func attachment(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	c.Data(http.StatusOK, contentType, body)
}

// ExportCSV godoc
// @ID          exportCSV
// @Summary     Export a conversation as CSV
// @Description Columns role,text,created_at; every cell quoted, line breaks in text replaced by spaces.
// @Tags        Export
// @Produce     text/csv
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     200  {string}  string  "CSV file"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/export/csv [get]
func (h *Handlers) ExportCSV(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	conv, _, msgs, err := h.Conversations.Messages(c.Request.Context(), s, c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeExportFailed)
		return
	}
	middleware.ObserveExport("csv")
	attachment(c, export.CSVFilename(conv.ID), csvContentType, export.CSV(export.LinesFrom(msgs)))
}

// ExportPDF godoc
// @ID          exportPDF
// @Summary     Export a conversation as PDF
// @Description A4 transcript with title, scenario, export time and one block per message.
// @Tags        Export
// @Produce     application/pdf
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     200  {string}  string  "PDF file"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/export/pdf [get]
func (h *Handlers) ExportPDF(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	conv, res, msgs, err := h.Conversations.Messages(c.Request.Context(), s, c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeExportFailed)
		return
	}
	var buf bytes.Buffer
	err = export.PDF(&buf, export.Transcript{
		Title:         conv.Title,
		ScenarioTitle: res.Title(),
		IsDemo:        conv.IsDemo,
		Author:        s.Email,
		ExportedAt:    h.Now(),
		Lines:         export.LinesFrom(msgs),
	})
	if err != nil {
		failService(c, err, ErrCodeExportFailed)
		return
	}
	middleware.ObserveExport("pdf")
	attachment(c, export.PDFFilename(conv.Title), "application/pdf", buf.Bytes())
}

// ExportReviewCSV godoc
// @ID          exportReviewCSV
// @Summary     Export a reviewed conversation as CSV
// @Tags        Admin
// @Produce     text/csv
// @Security    BearerAuth
// @Param       id      path  string  true  "Scenario ID"
// @Param       userId  path  string  true  "User ID"
// @Param       convId  path  string  true  "Conversation ID"
// @Success     200  {string}  string  "CSV file"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin role required"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/scenarios/{id}/users/{userId}/conversations/{convId}/csv [get]
func (h *Handlers) ExportReviewCSV(c *gin.Context) {
	convs, err := h.Review.UserConversations(c.Request.Context(), sess(c), c.Param("userId"), c.Param("id"))
	if err != nil {
		failService(c, err, ErrCodeExportFailed)
		return
	}
	convID := c.Param("convId")
	for _, rc := range convs {
		if rc.ID != convID {
			continue
		}
		middleware.ObserveExport("csv")
		attachment(c, export.CSVFilename(rc.ID), csvContentType, export.CSV(reviewLines(rc.Messages)))
		return
	}
	failService(c, services.ErrConversationNotFound, ErrCodeExportFailed)
}

func reviewLines(msgs []services.ReviewMessage) []export.Line {
	out := make([]export.Line, 0, len(msgs))
	for i := range msgs {
		l := export.Line{Sender: domain.Sender(msgs[i].Role), Text: msgs[i].Text}
		if !msgs[i].CreatedAt.IsZero() {
			at := msgs[i].CreatedAt
			l.CreatedAt = &at
		}
		out = append(out, l)
	}
	return out
}
