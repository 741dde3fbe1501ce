// Message HTTP handlers.
//
// This file exposes the message exchange:
//   - POST /conversations/{id}/messages  (send a turn in an existing conversation)
//   - POST /messages                     (start a conversation with its first turn)
//   - POST /webhooks/reply-callback      (relay delivers an asynchronous reply)
//
// Idempotency:
// If the client supplies an Idempotency-Key header on a conversation turn and
// a previous result exists for (user, conversation, key), the handler rebuilds
// that turn from storage and sets `Idempotency-Replayed: true` instead of
// calling the reply generator again.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/http/middleware"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/services"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for a user turn.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer.
type PostMessageRequest struct {
	// Content is the user prompt. It must not be blank.
	Content string `json:"content" binding:"required,min=1" example:"Can we talk about the delivery delay?"`
}

// StartMessageRequest sends the first turn of a new conversation.
type StartMessageRequest struct {
	Content        string `json:"content" binding:"required,min=1" example:"Hello!"`
	ScenarioID     string `json:"scenarioId" example:"4b7c1f9e-2a33-4c52-9a61-1d0f7e8b2c10"`
	DemoScenarioID string `json:"demoScenarioId" example:""`
}

// CallbackResponse acknowledges a stored reply.
type CallbackResponse struct {
	Success bool            `json:"success" example:"true"`
	Message *domain.Message `json:"message,omitempty"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two,
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// checkContent applies the edge checks shared by both send routes. It
// writes the error response and returns "" when content is unusable.
func (h *Handlers) checkContent(c *gin.Context, raw string) string {
	content := sanitizeContent(raw)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return ""
	}
	if h.MaxPromptRunes > 0 && utf8.RuneCountInString(content) > h.MaxPromptRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", h.MaxPromptRunes))
		return ""
	}
	return content
}

// observe labels the exchange outcome for metrics.
func (h *Handlers) observe(res *services.SendResult) {
	mode := h.ReplyMode
	if mode == "" {
		mode = "sync"
	}
	switch {
	case res.ReplyError != "":
		middleware.ObserveReply(mode, "failed")
	case res.Pending:
		middleware.ObserveReply(mode, "pending")
	default:
		middleware.ObserveReply(mode, "reply")
	}
}

// replay rebuilds a finished turn from the conversation: the user message
// the key was recorded for and the bot reply that follows it, if any.
func (h *Handlers) replay(c *gin.Context, convID, userMsgID string) (*services.SendResult, bool) {
	t, err := h.Conversations.Select(c.Request.Context(), sess(c), convID)
	if err != nil {
		return nil, false
	}
	for i, m := range t.Messages {
		if m.ID != userMsgID {
			continue
		}
		out := &services.SendResult{Conversation: t.Conversation, UserMessage: m, Appended: []services.DisplayMessage{m}}
		if i+1 < len(t.Messages) && t.Messages[i+1].Role == domain.SenderBot {
			reply := t.Messages[i+1]
			out.Reply = &reply
			out.Appended = append(out.Appended, reply)
		} else {
			out.Pending = m.Status == domain.StatusPending
		}
		return out, true
	}
	return nil, false
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends a user message to the conversation and asks the reply generator for an answer.
// @Description The system prompt is stored first on the first turn. Demo conversations are never persisted.
// @Description A failed persist and a failed reply are reported separately in the body; neither is retried.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries (UUID recommended)"
// @Param       id               path    string  true   "Conversation ID"
// @Param       body             body    handlers.PostMessageRequest  true  "User message payload"
// @Success     200  {object}  services.SendResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	ctx := c.Request.Context()
	convID := c.Param("id")

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := h.checkContent(c, req.Content)
	if content == "" {
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.DB != nil && middleware.IsReplay(c) {
		if rec, err := repo.GetIdempotency(ctx, h.DB, s.UserID, convID, idemKey, time.Now().UTC()); err == nil {
			if prev, found := h.replay(c, convID, rec.MessageID); found {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, prev)
				return
			}
		}
	}

	res, err := h.Exchange.Send(ctx, s, services.SendInput{ConversationID: convID, Text: content})
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}
	h.observe(res)

	// Best effort: a lost record only means a retry is sent again.
	if idemKey != "" && h.DB != nil && res.PersistError == "" {
		if _, err := repo.CreateIdempotency(ctx, h.DB, s.UserID, convID, idemKey, res.UserMessage.ID, http.StatusOK, h.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}
	ok(c, http.StatusOK, res)
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Start a conversation with a message
// @Description Creates a conversation under the resolved scenario and sends its first turn.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.StartMessageRequest  true  "First message and scenario"
// @Success     201  {object}  services.SendResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	s := sess(c)
	if s == nil {
		return
	}
	var req StartMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := h.checkContent(c, req.Content)
	if content == "" {
		return
	}
	res, err := h.Exchange.Send(c.Request.Context(), s, services.SendInput{
		Text:  content,
		Query: services.Query{ScenarioID: req.ScenarioID, DemoScenarioID: req.DemoScenarioID},
	})
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}
	h.observe(res)
	ok(c, http.StatusCreated, res)
}

// ReplyCallback godoc
// @ID          replyCallback
// @Summary     Deliver an asynchronous reply
// @Description Called by the relay. Stores the bot reply and marks the originating message done.
// @Description Guarded by the shared secret in X-Webhook-Secret.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       X-Webhook-Secret  header  string            true  "Shared secret"
// @Param       body              body    webhook.Callback  true  "Reply payload"
// @Success     200  {object}  handlers.CallbackResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing ids"
// @Failure     401  {object}  handlers.ErrorResponse  "Bad secret"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation or message not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/reply-callback [post]
func (h *Handlers) ReplyCallback(c *gin.Context) {
	if !webhook.SecretMatches(c.GetHeader(webhook.HeaderSecret), h.WebhookSecret) {
		middleware.ObserveCallback("unauthorized")
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid webhook secret")
		return
	}
	var cb webhook.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		middleware.ObserveCallback("rejected")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.Exchange.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		middleware.ObserveCallback("rejected")
		failService(c, err, ErrCodeInternal)
		return
	}
	middleware.ObserveCallback("accepted")
	ok(c, http.StatusOK, CallbackResponse{Success: true, Message: m})
}
