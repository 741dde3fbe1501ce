package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

// noReply is shown and stored when the reply generator answers with an
// empty body.
const noReply = "No reply"

// SendInput is one user turn. An empty ConversationID starts a new
// conversation under the scenario Query resolves to.
type SendInput struct {
	ConversationID string
	Text           string
	Query          Query
}

// SendResult reports what was appended locally and what went wrong. A
// persistence failure and a reply failure are reported separately; neither
// fails the call.
type SendResult struct {
	Conversation ConversationItem `json:"conversation"`
	// Appended is every message this turn added, in order: the system
	// prompt on the first turn, the user message, then the reply if any.
	Appended     []DisplayMessage `json:"appended"`
	UserMessage  DisplayMessage   `json:"user_message"`
	Reply        *DisplayMessage  `json:"reply,omitempty"`
	Pending      bool             `json:"pending"`
	PersistError string           `json:"persist_error,omitempty"`
	ReplyError   string           `json:"reply_error,omitempty"`
}

// ExchangeService runs a user turn: it appends the user message, asks the
// Replier for an answer and appends that. Nothing is retried.
type ExchangeService struct {
	DB            *gorm.DB
	Store         ephemeral.Store
	Conversations *ConversationService
	Resolver      *ScenarioResolver
	Replier       Replier

	// MaxPromptRunes caps the user text. Zero disables the check.
	MaxPromptRunes int
}

// Send appends text to a conversation and fetches the reply. Demo
// conversations are kept in the ephemeral store and never written to the
// messages table.
func (s *ExchangeService) Send(ctx context.Context, sess *session.Session, in SendInput) (*SendResult, error) {
	ctx, span := otel.Tracer("services/ExchangeService").Start(ctx, "Send",
		trace.WithAttributes(attribute.String("conversation.id", in.ConversationID)),
	)
	defer span.End()

	if sess == nil {
		return nil, session.ErrUnauthenticated
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(in.Text) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	conv, res, first, err := s.target(ctx, sess, in)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID), attribute.Bool("demo", conv.IsDemo))

	out := &SendResult{Conversation: conv}
	var sys *DisplayMessage
	if first && res.Prompt() != "" {
		sys = &DisplayMessage{ID: uuid.NewString(), Role: domain.SenderSystem, Text: res.Prompt(), Status: domain.StatusSent}
	}
	user := DisplayMessage{ID: uuid.NewString(), Role: domain.SenderUser, Text: in.Text, Status: domain.StatusPending}

	// The prompt side is stored before the reply is requested so a relay
	// callback always lands after it. Statuses are reconciled once the
	// reply outcome is known.
	persisted := false
	if conv.IsDemo {
		if err := s.appendDemo(ctx, conv.ID, sys, &user); err != nil {
			out.PersistError = err.Error()
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("demo append failed")
		}
	} else if err := s.persistTurn(ctx, sess, conv.ID, sys, &user); err != nil {
		out.PersistError = err.Error()
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("message persist failed")
	} else {
		persisted = true
	}

	if !conv.IsDemo && !persisted && isDeferred(s.Replier) {
		// A callback could never find the message, so the relay is not asked.
		out.ReplyError = ErrNotDispatched.Error()
		user.Status = domain.StatusFailed
	} else {
		s.reply(ctx, sess, conv, res, in.Text, &user, out)
	}

	if persisted && user.Status != domain.StatusPending {
		s.reconcile(ctx, user.ID, user.Status)
	}
	if conv.IsDemo {
		s.settleDemo(ctx, conv.ID, &user, out.Reply)
	}
	out.UserMessage = user
	if sys != nil {
		out.Appended = append(out.Appended, *sys)
	}
	out.Appended = append(out.Appended, user)
	if out.Reply != nil {
		out.Appended = append(out.Appended, *out.Reply)
	}
	return out, nil
}

// reply asks the Replier for an answer and records the outcome on user and
// out. Synchronous replies of persisted turns are stored here.
func (s *ExchangeService) reply(ctx context.Context, sess *session.Session, conv ConversationItem, res Resolution, text string, user *DisplayMessage, out *SendResult) {
	span := trace.SpanFromContext(ctx)
	answer, pending, err := s.Replier.Reply(ctx, webhook.Request{
		ConversationID: conv.ID,
		MessageID:      user.ID,
		SystemMessage:  res.Prompt(),
		Message:        text,
		User:           sess.Email,
	})
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "reply failed")
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("reply generation failed")
		out.ReplyError = err.Error()
		user.Status = domain.StatusFailed
	case pending:
		out.Pending = true
	default:
		if answer == "" {
			answer = noReply
		}
		bot := DisplayMessage{ID: uuid.NewString(), Role: domain.SenderBot, Text: answer, Status: domain.StatusSent}
		user.Status = domain.StatusSent
		if !conv.IsDemo && out.PersistError == "" {
			if err := s.persistReply(ctx, sess, conv.ID, &bot); err != nil {
				out.PersistError = err.Error()
				log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("reply persist failed")
			}
		}
		out.Reply = &bot
	}
}

// settleDemo appends a synchronous reply to a demo conversation and moves
// the user message to its final status.
func (s *ExchangeService) settleDemo(ctx context.Context, convID string, user, bot *DisplayMessage) {
	if bot != nil {
		if err := s.appendDemo(ctx, convID, bot); err != nil {
			log.Warn().Err(err).Str("conversation_id", convID).Msg("demo reply append failed")
		}
	}
	if user.Status == domain.StatusPending {
		return
	}
	if err := s.Store.SetMessageStatus(ctx, convID, user.ID, user.Status); err != nil {
		log.Warn().Err(err).Str("conversation_id", convID).Msg("demo status update failed")
	}
}

// target finds or creates the conversation for a turn, the scenario in
// effect for it, and whether it has no messages yet.
func (s *ExchangeService) target(ctx context.Context, sess *session.Session, in SendInput) (ConversationItem, Resolution, bool, error) {
	if in.ConversationID == "" {
		res := s.Resolver.Resolve(ctx, sess, in.Query)
		conv, err := s.Conversations.New(ctx, sess, res)
		return conv, res, true, err
	}
	if ephemeral.IsDemoID(in.ConversationID) {
		d, err := s.Conversations.demo(ctx, sess, in.ConversationID)
		if err != nil {
			return ConversationItem{}, Resolution{}, false, err
		}
		return itemFromDemo(d), demoResolution(d), len(d.Messages) == 0, nil
	}

	c, err := repo.GetConversation(ctx, s.DB, in.ConversationID, sess.UserID)
	if err != nil {
		if isNotFound(err) {
			return ConversationItem{}, Resolution{}, false, ErrConversationNotFound
		}
		return ConversationItem{}, Resolution{}, false, err
	}
	var res Resolution
	if c.AssignmentID != nil {
		res = s.Resolver.ForAssignment(ctx, *c.AssignmentID)
	} else {
		res = s.Resolver.Resolve(ctx, sess, Query{ScenarioID: in.Query.ScenarioID})
	}
	n, err := repo.CountMessages(ctx, s.DB, c.ID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", c.ID).Msg("message count failed")
	}
	return itemFromRow(c), res, err == nil && n == 0, nil
}

// persistTurn writes the optional system message and the pending user
// message in one transaction. The stored ids replace the provisional ones.
func (s *ExchangeService) persistTurn(ctx context.Context, sess *session.Session, convID string, sys, user *DisplayMessage) error {
	uid := sess.UserID
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if sys != nil {
			m, err := repo.CreateMessage(ctx, tx, repo.NewMessage{
				ConversationID: convID, UserID: &uid, Sender: domain.SenderSystem,
				Content: sys.Text, Status: domain.StatusSent,
			})
			if err != nil {
				return err
			}
			sys.ID, sys.CreatedAt = m.ID, m.CreatedAt
		}
		m, err := repo.CreateMessage(ctx, tx, repo.NewMessage{
			ConversationID: convID, UserID: &uid, Sender: domain.SenderUser,
			Content: user.Text, Status: domain.StatusPending,
		})
		if err != nil {
			return err
		}
		user.ID, user.CreatedAt = m.ID, m.CreatedAt
		return repo.TouchConversation(ctx, tx, convID)
	})
}

func (s *ExchangeService) persistReply(ctx context.Context, sess *session.Session, convID string, bot *DisplayMessage) error {
	uid := sess.UserID
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(ctx, tx, repo.NewMessage{
			ConversationID: convID, UserID: &uid, Sender: domain.SenderBot,
			Content: bot.Text, Status: bot.Status,
		})
		if err != nil {
			return err
		}
		bot.ID, bot.CreatedAt = m.ID, m.CreatedAt
		return repo.TouchConversation(ctx, tx, convID)
	})
}

// reconcile moves a persisted user message to its final status. Failures
// are logged only.
func (s *ExchangeService) reconcile(ctx context.Context, id string, status domain.MessageStatus) {
	if err := repo.UpdateMessageStatus(ctx, s.DB, id, status); err != nil {
		log.Warn().Err(err).Str("message_id", id).Str("status", string(status)).Msg("message status update failed")
	}
}

func (s *ExchangeService) appendDemo(ctx context.Context, convID string, msgs ...*DisplayMessage) error {
	var batch []domain.Message
	now := time.Now().UTC()
	for _, m := range msgs {
		if m == nil {
			continue
		}
		m.CreatedAt = now
		batch = append(batch, domain.Message{
			ID:             m.ID,
			ConversationID: convID,
			Sender:         m.Role,
			Content:        m.Text,
			Status:         m.Status,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return s.Store.AppendMessages(ctx, convID, batch...)
}

// HandleCallback stores a reply delivered by the relay: the bot message is
// appended with status done and the originating user message is marked
// done, in one transaction.
func (s *ExchangeService) HandleCallback(ctx context.Context, cb webhook.Callback) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/ExchangeService").Start(ctx, "HandleCallback",
		trace.WithAttributes(
			attribute.String("conversation.id", cb.ConversationID),
			attribute.String("message.id", cb.MessageID),
		),
	)
	defer span.End()

	if cb.ConversationID == "" || cb.MessageID == "" {
		return nil, ErrBadCallback
	}
	text := cb.AIText
	if text == "" {
		text = noReply
	}

	if ephemeral.IsDemoID(cb.ConversationID) {
		now := time.Now().UTC()
		bot := domain.Message{
			ID: uuid.NewString(), ConversationID: cb.ConversationID, Sender: domain.SenderBot,
			Content: text, Status: domain.StatusDone, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.Store.AppendMessages(ctx, cb.ConversationID, bot); err != nil {
			if errors.Is(err, ephemeral.ErrNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, err
		}
		if err := s.Store.SetMessageStatus(ctx, cb.ConversationID, cb.MessageID, domain.StatusDone); err != nil {
			log.Warn().Err(err).Str("conversation_id", cb.ConversationID).Msg("demo status update failed")
		}
		return &bot, nil
	}

	var bot *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetConversationByID(ctx, tx, cb.ConversationID)
		if err != nil {
			if isNotFound(err) {
				return ErrConversationNotFound
			}
			return err
		}
		orig, err := repo.GetMessage(ctx, tx, cb.MessageID)
		if err != nil {
			if isNotFound(err) {
				return ErrMessageNotFound
			}
			return err
		}
		if orig.ConversationID != c.ID {
			return ErrMessageNotFound
		}
		uid := c.UserID
		bot, err = repo.CreateMessage(ctx, tx, repo.NewMessage{
			ConversationID: c.ID, UserID: &uid, Sender: domain.SenderBot,
			Content: text, Status: domain.StatusDone,
		})
		if err != nil {
			return err
		}
		if err := repo.UpdateMessageStatus(ctx, tx, orig.ID, domain.StatusDone); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	return bot, nil
}
