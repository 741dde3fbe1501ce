package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/services"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

func TestSanitizeContent(t *testing.T) {
	cases := map[string]string{
		"  hi  ":          "hi",
		"a\r\nb":          "a\nb",
		"a\rb":            "a\nb",
		"a\n\n\n\n\nb":    "a\n\nb",
		"\n\n  spaced \n": "spaced",
	}
	for in, want := range cases {
		if got := sanitizeContent(in); got != want {
			t.Errorf("sanitizeContent(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPostMessage_FirstTurnStoresPromptAndReply(t *testing.T) {
	f := newFixture(t)
	sc := f.seedScenario(t, "Support", "you are a support agent")
	f.seedAssignment(t, "u1", sc.ID)
	r := f.router(userSess("u1"))
	conv := createConversation(t, r, "")

	w := do(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"my order is late"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("post: %d %s", w.Code, w.Body.String())
	}
	res := decode[services.SendResult](t, w)
	if res.PersistError != "" || res.ReplyError != "" {
		t.Fatalf("unexpected errors: %+v", res)
	}
	if len(res.Appended) != 3 ||
		res.Appended[0].Role != domain.SenderSystem ||
		res.Appended[1].Role != domain.SenderUser ||
		res.Appended[2].Role != domain.SenderBot {
		t.Fatalf("unexpected appended: %+v", res.Appended)
	}
	if res.Reply == nil || res.Reply.Text != "hello back" {
		t.Fatalf("unexpected reply: %+v", res.Reply)
	}
	if n := f.count(t, &domain.Message{}); n != 3 {
		t.Fatalf("want 3 rows, got %d", n)
	}

	// Second turn: no second system message.
	res = decode[services.SendResult](t, do(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"any news?"}`, nil))
	if len(res.Appended) != 2 {
		t.Fatalf("second turn appended %d messages", len(res.Appended))
	}
	if n := f.count(t, &domain.Message{}); n != 5 {
		t.Fatalf("want 5 rows, got %d", n)
	}
}

func TestPostMessage_EmptyReplyBecomesNoReply(t *testing.T) {
	f := newFixture(t)
	f.replier.text = ""
	r := f.router(userSess("u1"))
	conv := createConversation(t, r, "")

	res := decode[services.SendResult](t, do(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"hi"}`, nil))
	if res.Reply == nil || res.Reply.Text != "No reply" {
		t.Fatalf("unexpected reply: %+v", res.Reply)
	}
}

func TestPostMessage_BadInput(t *testing.T) {
	f := newFixture(t)
	f.deps.MaxPromptRunes = 5
	r := f.router(userSess("u1"))
	conv := createConversation(t, r, "")
	path := "/conversations/" + conv.ID + "/messages"

	for _, body := range []string{`{}`, `{"content":"   "}`, `{"content":"\n\n"}`, `{"content":"toolong"}`, `{`} {
		if w := do(t, r, http.MethodPost, path, body, nil); w.Code != http.StatusBadRequest {
			t.Errorf("body %s: want 400, got %d", body, w.Code)
		}
	}
	if f.replier.calls != 0 {
		t.Fatalf("replier called on bad input: %d", f.replier.calls)
	}
	// Rune count, not bytes.
	if w := do(t, r, http.MethodPost, path, `{"content":"ééééé"}`, nil); w.Code != http.StatusOK {
		t.Fatalf("5 runes should pass, got %d", w.Code)
	}
}

func TestPostMessage_UnknownConversation404(t *testing.T) {
	f := newFixture(t)
	w := do(t, f.router(userSess("u1")), http.MethodPost, "/conversations/"+uuid.NewString()+"/messages", `{"content":"hi"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}

func TestPostMessage_ReplyFailureReported(t *testing.T) {
	f := newFixture(t)
	f.replier.err = errors.New("webhook: status 502")
	r := f.router(userSess("u1"))
	conv := createConversation(t, r, "")

	w := do(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"hi"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reply failure must not fail the call: %d", w.Code)
	}
	res := decode[services.SendResult](t, w)
	if res.ReplyError == "" || res.PersistError != "" || res.Reply != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.UserMessage.Status != domain.StatusFailed {
		t.Fatalf("user message status %q", res.UserMessage.Status)
	}
	stored, err := repo.GetMessage(context.Background(), f.db, res.UserMessage.ID)
	if err != nil || stored.Status != domain.StatusFailed {
		t.Fatalf("stored status not reconciled: %+v %v", stored, err)
	}
	if f.replier.calls != 1 {
		t.Fatalf("must not retry, calls=%d", f.replier.calls)
	}
}

func TestPostMessage_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	r := f.router(userSess("u1"))
	conv := createConversation(t, r, "")
	path := "/conversations/" + conv.ID + "/messages"
	hdr := map[string]string{"Idempotency-Key": "key-123"}

	w1 := do(t, r, http.MethodPost, path, `{"content":"hi"}`, hdr)
	if w1.Code != http.StatusOK || w1.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first: %d %q", w1.Code, w1.Header().Get("Idempotency-Replayed"))
	}
	first := decode[services.SendResult](t, w1)

	w2 := do(t, r, http.MethodPost, path, `{"content":"hi"}`, hdr)
	if w2.Code != http.StatusOK || w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d %q", w2.Code, w2.Header().Get("Idempotency-Replayed"))
	}
	second := decode[services.SendResult](t, w2)
	if second.UserMessage.ID != first.UserMessage.ID || second.Reply == nil || second.Reply.ID != first.Reply.ID {
		t.Fatalf("replay differs: %+v vs %+v", second, first)
	}
	if f.replier.calls != 1 {
		t.Fatalf("replay reached the replier: calls=%d", f.replier.calls)
	}

	if w := do(t, r, http.MethodPost, path, `{"content":"hi"}`, map[string]string{"Idempotency-Key": "bad key!"}); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key: want 400, got %d", w.Code)
	}
}

func TestStartConversation_CreatesAndSends(t *testing.T) {
	f := newFixture(t)
	sc := f.seedScenario(t, "Support", "you are a support agent")
	a := f.seedAssignment(t, "u1", sc.ID)

	w := do(t, f.router(userSess("u1")), http.MethodPost, "/messages", `{"content":"hello","scenarioId":"`+a.ID+`"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	res := decode[services.SendResult](t, w)
	if res.Conversation.ScenarioID == nil || *res.Conversation.ScenarioID != a.ID {
		t.Fatalf("conversation not linked to the assignment: %+v", res.Conversation)
	}
	if n := f.count(t, &domain.Conversation{}); n != 1 {
		t.Fatalf("want 1 conversation, got %d", n)
	}
}

func TestStartConversation_DemoWritesNothing(t *testing.T) {
	f := newFixture(t)
	sc := f.seedScenario(t, "Preview", "preview prompt")

	w := do(t, f.router(adminSess()), http.MethodPost, "/messages", `{"content":"hello","demoScenarioId":"`+sc.ID+`"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	res := decode[services.SendResult](t, w)
	if !res.Conversation.IsDemo || !ephemeral.IsDemoID(res.Conversation.ID) {
		t.Fatalf("expected demo: %+v", res.Conversation)
	}
	if f.count(t, &domain.Conversation{}) != 0 || f.count(t, &domain.Message{}) != 0 {
		t.Fatal("demo turn wrote rows")
	}
	d, err := f.store.GetConversation(context.Background(), res.Conversation.ID)
	if err != nil || len(d.Messages) != 3 {
		t.Fatalf("demo messages not kept in store: %v %+v", err, d)
	}
}

func TestReplyCallback(t *testing.T) {
	f := newFixture(t)
	f.replier.pending = true
	f.deps.ReplyMode = "async"
	r := f.router(userSess("u1"))
	conv := createConversation(t, r, "")

	res := decode[services.SendResult](t, do(t, r, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"hi"}`, nil))
	if !res.Pending || res.Reply != nil || res.UserMessage.Status != domain.StatusPending {
		t.Fatalf("expected pending turn: %+v", res)
	}

	cb := `{"conversationId":"` + conv.ID + `","messageId":"` + res.UserMessage.ID + `","aiText":"late reply"}`
	if w := do(t, r, http.MethodPost, "/webhooks/reply-callback", cb, map[string]string{webhook.HeaderSecret: "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad secret: want 401, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/webhooks/reply-callback", `{"aiText":"x"}`, map[string]string{webhook.HeaderSecret: "s3cret"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing ids: want 400, got %d", w.Code)
	}

	w := do(t, r, http.MethodPost, "/webhooks/reply-callback", cb, map[string]string{webhook.HeaderSecret: "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", w.Code, w.Body.String())
	}
	got := decode[CallbackResponse](t, w)
	if !got.Success || got.Message == nil || got.Message.Content != "late reply" || got.Message.Status != domain.StatusDone {
		t.Fatalf("unexpected callback response: %+v", got)
	}
	orig, err := repo.GetMessage(context.Background(), f.db, res.UserMessage.ID)
	if err != nil || orig.Status != domain.StatusDone {
		t.Fatalf("origin not marked done: %+v %v", orig, err)
	}

	missing := strings.Replace(cb, conv.ID, uuid.NewString(), 1)
	if w := do(t, r, http.MethodPost, "/webhooks/reply-callback", missing, map[string]string{webhook.HeaderSecret: "s3cret"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation: want 404, got %d", w.Code)
	}
}
