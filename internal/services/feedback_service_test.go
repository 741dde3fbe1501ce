package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
)

func seedExchange(t *testing.T, f *fixture, userID string) (userMsg, botMsg string) {
	t.Helper()
	out, err := f.exchange.Send(context.Background(), userSession(userID), SendInput{Text: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	return out.UserMessage.ID, out.Reply.ID
}

func TestFeedback_Leave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := &FeedbackService{DB: f.db}
	userMsg, botMsg := seedExchange(t, f, "u1")
	u := userSession("u1")

	if _, err := svc.Leave(ctx, u, botMsg, 0, nil); !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("rating 0: %v", err)
	}
	if _, err := svc.Leave(ctx, u, botMsg, 6, nil); !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("rating 6: %v", err)
	}
	if _, err := svc.Leave(ctx, u, "missing", 3, nil); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if _, err := svc.Leave(ctx, u, userMsg, 3, nil); !errors.Is(err, ErrForbiddenFeedback) {
		t.Fatalf("user message: %v", err)
	}
	if _, err := svc.Leave(ctx, userSession("u2"), botMsg, 3, nil); !errors.Is(err, ErrForbiddenFeedback) {
		t.Fatalf("foreign conversation: %v", err)
	}

	comment := "  helpful  "
	fb, err := svc.Leave(ctx, u, botMsg, 5, &comment)
	if err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if fb.Rating != 5 || fb.Comment == nil || *fb.Comment != "helpful" {
		t.Fatalf("feedback = %+v", fb)
	}
	if _, err := svc.Leave(ctx, u, botMsg, 4, nil); !errors.Is(err, ErrDuplicateFeedback) {
		t.Fatalf("duplicate: %v", err)
	}

	all, _ := repo.ListFeedback(ctx, f.db)
	if len(all) != 1 {
		t.Fatalf("want 1 feedback row, got %d", len(all))
	}
}

func TestAnalytics_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := &AnalyticsService{DB: f.db}

	empty, err := svc.Summary(ctx, adminSession())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if empty.TotalConversations != 0 || empty.AvgMessages != 0 || len(empty.Feedback) != 0 {
		t.Fatalf("empty = %+v", empty)
	}

	// Two conversations: 2 and 4 messages, 1 and 2 from the user.
	seedExchange(t, f, "u1")
	out, _ := f.exchange.Send(ctx, userSession("u2"), SendInput{Text: "a"})
	if _, err := f.exchange.Send(ctx, userSession("u2"), SendInput{ConversationID: out.Conversation.ID, Text: "b"}); err != nil {
		t.Fatal(err)
	}
	// An empty conversation is not counted.
	if _, err := repo.CreateConversation(ctx, f.db, "u3", "empty", nil); err != nil {
		t.Fatal(err)
	}

	s, err := svc.Summary(ctx, adminSession())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.TotalConversations != 2 || s.AvgMessages != 3 || s.AvgUserMessages != 1.5 {
		t.Fatalf("summary = %+v", s)
	}
	if _, err := svc.Summary(ctx, userSession("u1")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestRound1(t *testing.T) {
	if got := round1(7.0 / 3.0); got != 2.3 {
		t.Fatalf("round1 = %v", got)
	}
	if got := round1(2.25); got != 2.3 {
		t.Fatalf("round1 = %v", got)
	}
}

func TestReview_UsersAndConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := seedScenario(t, f.db, "Sales", "p")
	for _, id := range []string{"u1", "u2"} {
		if _, err := repo.EnsureProfile(ctx, f.db, id, id+"@x"); err != nil {
			t.Fatal(err)
		}
	}
	a := seedAssignment(t, f.db, "u1", sc.ID)
	seedAssignment(t, f.db, "u1", sc.ID)

	svc := &ReviewService{DB: f.db}
	users, err := svc.UsersForScenario(ctx, adminSession(), sc.ID)
	if err != nil || len(users) != 1 || users[0].ID != "u1" {
		t.Fatalf("users = %+v, %v", users, err)
	}

	out, err := f.exchange.Send(ctx, userSession("u1"), SendInput{Text: "hi", Query: Query{ScenarioID: a.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateConversation(ctx, f.db, "u1", "", &a.ID); err != nil {
		t.Fatal(err)
	}

	convs, err := svc.UserConversations(ctx, adminSession(), "u1", sc.ID)
	if err != nil {
		t.Fatalf("UserConversations: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("want 2 conversations, got %d", len(convs))
	}
	if len(convs[0].Messages) != 0 || convs[0].Title[:len("Chat • ")] != "Chat • " {
		t.Fatalf("newest should be the untitled empty one: %+v", convs[0])
	}
	if convs[1].ID != out.Conversation.ID || len(convs[1].Messages) != 3 || convs[1].Messages[0].Role != string(domain.SenderSystem) {
		t.Fatalf("older = %+v", convs[1])
	}
	if _, err := svc.UserConversations(ctx, userSession("u1"), "u1", sc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}
