package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.exchange.Send(ctx, nil, SendInput{Text: "hi"}); !errors.Is(err, session.ErrUnauthenticated) {
		t.Fatalf("want ErrUnauthenticated, got %v", err)
	}
	if _, err := f.exchange.Send(ctx, userSession("u1"), SendInput{Text: "  \n"}); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("want ErrEmptyPrompt, got %v", err)
	}
	f.exchange.MaxPromptRunes = 3
	if _, err := f.exchange.Send(ctx, userSession("u1"), SendInput{Text: "four"}); !errors.Is(err, ErrTooLong) {
		t.Fatalf("want ErrTooLong, got %v", err)
	}
	if _, err := f.exchange.Send(ctx, userSession("u1"), SendInput{ConversationID: "nope", Text: "hi"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("want ErrConversationNotFound, got %v", err)
	}
	if countMessages(t, f.db) != 0 || len(f.replier.reqs) != 0 {
		t.Fatalf("rejected sends must not write or call out")
	}
}

func TestSend_SyncPersistsAllThree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := userSession("u1")
	sc := seedScenario(t, f.db, "Sales", "be a buyer")
	seedAssignment(t, f.db, u.UserID, sc.ID)

	out, err := f.exchange.Send(ctx, u, SendInput{Text: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.PersistError != "" || out.ReplyError != "" || out.Pending {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(out.Appended) != 3 || out.Appended[0].Role != domain.SenderSystem || out.Reply.Text != "hello back" {
		t.Fatalf("appended = %+v", out.Appended)
	}

	req := f.replier.reqs[0]
	if req.SystemMessage != "be a buyer" || req.Message != "hello" || req.User != "u1@example.com" || req.MessageID != out.UserMessage.ID {
		t.Fatalf("request = %+v", req)
	}

	msgs, _ := repo.ListMessages(ctx, f.db, out.Conversation.ID)
	if len(msgs) != 3 {
		t.Fatalf("want 3 stored messages, got %d", len(msgs))
	}
	if msgs[0].Sender != domain.SenderSystem || msgs[1].Sender != domain.SenderUser || msgs[2].Sender != domain.SenderBot {
		t.Fatalf("order = %s,%s,%s", msgs[0].Sender, msgs[1].Sender, msgs[2].Sender)
	}
	if msgs[1].Status != domain.StatusSent {
		t.Fatalf("user message should be reconciled to sent, got %s", msgs[1].Status)
	}

	// The system prompt is only added on the first turn.
	out2, err := f.exchange.Send(ctx, u, SendInput{ConversationID: out.Conversation.ID, Text: "again"})
	if err != nil {
		t.Fatalf("Send 2: %v", err)
	}
	if len(out2.Appended) != 2 {
		t.Fatalf("second turn appended %d", len(out2.Appended))
	}
	if f.replier.reqs[1].SystemMessage != "be a buyer" {
		t.Fatalf("prompt should still be sent to the webhook")
	}
}

func TestSend_EmptyReplyShowsNoReply(t *testing.T) {
	f := newFixture(t)
	f.replier.text = ""
	out, err := f.exchange.Send(context.Background(), userSession("u1"), SendInput{Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Reply == nil || out.Reply.Text != "No reply" {
		t.Fatalf("reply = %+v", out.Reply)
	}
}

func TestSend_ReplyFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.replier.err = errors.New("connection refused")

	out, err := f.exchange.Send(ctx, userSession("u1"), SendInput{Text: "hi"})
	if err != nil {
		t.Fatalf("Send should not fail on reply errors: %v", err)
	}
	if out.ReplyError == "" || out.PersistError != "" || out.Reply != nil {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(out.Appended) != 1 || out.Appended[0].Role != domain.SenderUser {
		t.Fatalf("only the user message should be appended: %+v", out.Appended)
	}
	msgs, _ := repo.ListMessages(ctx, f.db, out.Conversation.ID)
	if len(msgs) != 1 || msgs[0].Status != domain.StatusFailed {
		t.Fatalf("stored = %+v", msgs)
	}
}

func TestSend_DemoNeverInsertsMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := adminSession()
	sc := seedScenario(t, f.db, "Preview", "demo prompt")

	out, err := f.exchange.Send(ctx, admin, SendInput{Text: "hi", Query: Query{DemoScenarioID: sc.ID}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !out.Conversation.IsDemo || len(out.Appended) != 3 {
		t.Fatalf("unexpected: %+v", out)
	}
	if _, err := f.exchange.Send(ctx, admin, SendInput{ConversationID: out.Conversation.ID, Text: "more"}); err != nil {
		t.Fatalf("Send 2: %v", err)
	}
	if n := countMessages(t, f.db); n != 0 {
		t.Fatalf("demo wrote %d messages", n)
	}

	th, err := f.convs.Select(ctx, admin, out.Conversation.ID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(th.Messages) != 5 || th.Messages[0].Role != domain.SenderSystem {
		t.Fatalf("demo thread = %+v", th.Messages)
	}
}

func TestSend_AsyncThenCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.replier.pending = true
	u := userSession("u1")

	out, err := f.exchange.Send(ctx, u, SendInput{Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !out.Pending || out.Reply != nil {
		t.Fatalf("want pending without reply: %+v", out)
	}
	stored, _ := repo.GetMessage(ctx, f.db, out.UserMessage.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("status = %s", stored.Status)
	}

	bot, err := f.exchange.HandleCallback(ctx, webhook.Callback{
		ConversationID: out.Conversation.ID,
		MessageID:      out.UserMessage.ID,
		AIText:         "later",
	})
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if bot.Status != domain.StatusDone || bot.Content != "later" {
		t.Fatalf("bot = %+v", bot)
	}
	stored, _ = repo.GetMessage(ctx, f.db, out.UserMessage.ID)
	if stored.Status != domain.StatusDone {
		t.Fatalf("user message should be done, got %s", stored.Status)
	}
}

func TestHandleCallback_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.exchange.HandleCallback(ctx, webhook.Callback{AIText: "x"}); !errors.Is(err, ErrBadCallback) {
		t.Fatalf("want ErrBadCallback, got %v", err)
	}
	if _, err := f.exchange.HandleCallback(ctx, webhook.Callback{ConversationID: "c", MessageID: "m"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("want ErrConversationNotFound, got %v", err)
	}
	conv, _ := repo.CreateConversation(ctx, f.db, "u1", "t", nil)
	if _, err := f.exchange.HandleCallback(ctx, webhook.Callback{ConversationID: conv.ID, MessageID: "m"}); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("want ErrMessageNotFound, got %v", err)
	}
	if countMessages(t, f.db) != 0 {
		t.Fatalf("failed callbacks must not store replies")
	}
}

func TestHandleCallback_Demo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.replier.pending = true
	admin := adminSession()
	sc := seedScenario(t, f.db, "Preview", "p")

	out, err := f.exchange.Send(ctx, admin, SendInput{Text: "hi", Query: Query{DemoScenarioID: sc.ID}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := f.exchange.HandleCallback(ctx, webhook.Callback{ConversationID: out.Conversation.ID, MessageID: out.UserMessage.ID, AIText: "demo reply"}); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	th, _ := f.convs.Select(ctx, admin, out.Conversation.ID)
	last := th.Messages[len(th.Messages)-1]
	if last.Role != domain.SenderBot || last.Text != "demo reply" {
		t.Fatalf("last = %+v", last)
	}
	if countMessages(t, f.db) != 0 {
		t.Fatalf("demo callback wrote to the database")
	}
}

// callbackRelay delivers its reply through HandleCallback before Reply
// returns, the way a fast relay races its own acknowledgement.
type callbackRelay struct {
	ex *ExchangeService
}

func (r *callbackRelay) Reply(ctx context.Context, req webhook.Request) (string, bool, error) {
	_, err := r.ex.HandleCallback(ctx, webhook.Callback{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		AIText:         "bot answer",
	})
	return "", true, err
}

func TestSend_DemoCallbackBeforeAckKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exchange.Replier = &callbackRelay{ex: f.exchange}
	admin := adminSession()
	sc := seedScenario(t, f.db, "Preview", "prompt")

	out, err := f.exchange.Send(ctx, admin, SendInput{Text: "hi", Query: Query{DemoScenarioID: sc.ID}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	th, err := f.convs.Select(ctx, admin, out.Conversation.ID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := []domain.Sender{domain.SenderSystem, domain.SenderUser, domain.SenderBot}
	if len(th.Messages) != len(want) {
		t.Fatalf("thread = %+v", th.Messages)
	}
	for i, role := range want {
		if th.Messages[i].Role != role {
			t.Fatalf("message %d is %s, want %s: %+v", i, th.Messages[i].Role, role, th.Messages)
		}
	}
	if th.Messages[1].Status != domain.StatusDone {
		t.Fatalf("user message status = %s", th.Messages[1].Status)
	}
}

func TestSend_DemoSyncSettlesUserStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := adminSession()
	sc := seedScenario(t, f.db, "Preview", "prompt")

	out, err := f.exchange.Send(ctx, admin, SendInput{Text: "hi", Query: Query{DemoScenarioID: sc.ID}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	d, err := f.store.GetConversation(ctx, out.Conversation.ID)
	if err != nil || len(d.Messages) != 3 {
		t.Fatalf("demo = %+v err=%v", d, err)
	}
	if d.Messages[1].Status != domain.StatusSent || d.Messages[2].Content != "hello back" {
		t.Fatalf("demo messages = %+v", d.Messages)
	}
}

func TestSend_RelayNotAskedWhenTurnNotStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.replier.pending = true
	f.replier.deferred = true
	conv, err := repo.CreateConversation(ctx, f.db, "u1", "t", nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := f.db.Migrator().DropTable(&domain.Message{}); err != nil {
		t.Fatalf("drop messages: %v", err)
	}

	out, err := f.exchange.Send(ctx, userSession("u1"), SendInput{ConversationID: conv.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.PersistError == "" || out.ReplyError != ErrNotDispatched.Error() || out.Pending {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.UserMessage.Status != domain.StatusFailed {
		t.Fatalf("user status = %s", out.UserMessage.Status)
	}
	if len(f.replier.reqs) != 0 {
		t.Fatalf("relay received %d requests for an unstored message", len(f.replier.reqs))
	}
}

func TestSend_SyncStillRepliesWhenTurnNotStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, _ := repo.CreateConversation(ctx, f.db, "u1", "t", nil)
	if err := f.db.Migrator().DropTable(&domain.Message{}); err != nil {
		t.Fatalf("drop messages: %v", err)
	}

	out, err := f.exchange.Send(ctx, userSession("u1"), SendInput{ConversationID: conv.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.PersistError == "" || out.ReplyError != "" || out.Reply == nil || out.Reply.Text != "hello back" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestIsDeferred(t *testing.T) {
	if !isDeferred(RelayReplier{}) {
		t.Fatal("RelayReplier should be deferred")
	}
	if isDeferred(SyncReplier{}) || isDeferred(&fakeReplier{}) {
		t.Fatal("sync repliers are not deferred")
	}
}
