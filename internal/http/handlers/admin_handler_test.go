package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/services"
)

func TestAdminRoutes_ForbiddenForUsers(t *testing.T) {
	f := newFixture(t)
	r := f.router(userSess("u1"))
	for _, p := range []string{"/admin/scenarios", "/admin/users", "/admin/analytics"} {
		if w := do(t, r, http.MethodGet, p, "", nil); w.Code != http.StatusForbidden {
			t.Errorf("%s: want 403, got %d", p, w.Code)
		}
	}
}

func TestScenarioCRUD(t *testing.T) {
	f := newFixture(t)
	r := f.router(adminSess())

	w := do(t, r, http.MethodPost, "/admin/scenarios", `{"title":"Negotiation","content":"haggle hard"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	sc := decode[domain.Scenario](t, w)

	if w := do(t, r, http.MethodPost, "/admin/scenarios", `{"title":"","content":"x"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing title: want 400, got %d", w.Code)
	}

	got := decode[domain.Scenario](t, do(t, r, http.MethodGet, "/admin/scenarios/"+sc.ID, "", nil))
	if got.Title != "Negotiation" {
		t.Fatalf("get: %+v", got)
	}

	w = do(t, r, http.MethodPut, "/admin/scenarios/"+sc.ID, `{"title":"Negotiation II","content":"haggle harder"}`, nil)
	if w.Code != http.StatusOK || decode[domain.Scenario](t, w).Content != "haggle harder" {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	if w := do(t, r, http.MethodDelete, "/admin/scenarios/"+sc.ID, "", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/admin/scenarios/"+sc.ID, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("after delete: want 404, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPut, "/admin/scenarios/"+sc.ID, `{"title":"t","content":"c"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("update missing: want 404, got %d", w.Code)
	}
}

func TestListScenarios_SearchAndPagination(t *testing.T) {
	f := newFixture(t)
	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		f.seedScenario(t, title, "content of "+title)
	}
	r := f.router(adminSess())

	got := decode[ListScenariosResponse](t, do(t, r, http.MethodGet, "/admin/scenarios?page=1&page_size=2", "", nil))
	if len(got.Scenarios) != 2 || got.Pagination.Total != 3 || got.Pagination.TotalPages != 2 || !got.Pagination.HasNext {
		t.Fatalf("page 1: %+v", got.Pagination)
	}
	got = decode[ListScenariosResponse](t, do(t, r, http.MethodGet, "/admin/scenarios?page=2&page_size=2", "", nil))
	if len(got.Scenarios) != 1 || got.Pagination.HasNext {
		t.Fatalf("page 2: %+v", got.Pagination)
	}
	got = decode[ListScenariosResponse](t, do(t, r, http.MethodGet, "/admin/scenarios?q=gAmMa", "", nil))
	if len(got.Scenarios) != 1 || got.Scenarios[0].Title != "Gamma" {
		t.Fatalf("search: %+v", got.Scenarios)
	}
}

func TestAssignAndToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := repo.EnsureProfile(ctx, f.db, "u1", "u1@example.com"); err != nil {
		t.Fatalf("profile: %v", err)
	}
	sc := f.seedScenario(t, "Onboarding", "welcome")
	r := f.router(adminSess())

	users := decode[UsersResponse](t, do(t, r, http.MethodGet, "/admin/users", "", nil))
	if len(users.Users) != 1 || users.Users[0].ID != "u1" {
		t.Fatalf("users: %+v", users.Users)
	}

	if w := do(t, r, http.MethodPost, "/admin/users/u1/assignments", `{"scenario_id":"missing"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown scenario: want 404, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/admin/users/u1/assignments", `{"scenario_id":"`+sc.ID+`"}`, nil); w.Code != http.StatusCreated {
		t.Fatalf("assign: %d %s", w.Code, w.Body.String())
	}
	as := decode[AssignmentsResponse](t, do(t, r, http.MethodGet, "/admin/users/u1/assignments", "", nil))
	if len(as.Assignments) != 1 || as.Assignments[0].ScenarioID != sc.ID {
		t.Fatalf("assignments: %+v", as.Assignments)
	}

	toggle := "/admin/users/u1/scenarios/" + sc.ID + "/toggle"
	tg := decode[ToggleAssignmentResponse](t, do(t, r, http.MethodPost, toggle, "", nil))
	if tg.Assigned {
		t.Fatal("toggle of an assigned pair should remove it")
	}
	tg = decode[ToggleAssignmentResponse](t, do(t, r, http.MethodPost, toggle, "", nil))
	if !tg.Assigned {
		t.Fatal("second toggle should restore the assignment")
	}

	holders := decode[UsersResponse](t, do(t, r, http.MethodGet, "/admin/scenarios/"+sc.ID+"/users", "", nil))
	if len(holders.Users) != 1 {
		t.Fatalf("scenario users: %+v", holders.Users)
	}
}

func TestReviewConversationsAndCSV(t *testing.T) {
	f := newFixture(t)
	sc := f.seedScenario(t, "Support", "you are a support agent")
	a := f.seedAssignment(t, "u1", sc.ID)
	ur := f.router(userSess("u1"))
	conv := createConversation(t, ur, `{"scenarioId":"`+a.ID+`"}`)
	do(t, ur, http.MethodPost, "/conversations/"+conv.ID+"/messages", `{"content":"say \"hi\""}`, nil)

	r := f.router(adminSess())
	rev := decode[ReviewResponse](t, do(t, r, http.MethodGet, "/admin/scenarios/"+sc.ID+"/users/u1/conversations", "", nil))
	if len(rev.Conversations) != 1 || rev.Conversations[0].ID != conv.ID {
		t.Fatalf("review: %+v", rev.Conversations)
	}
	if n := len(rev.Conversations[0].Messages); n != 3 {
		t.Fatalf("want 3 messages, got %d", n)
	}

	w := do(t, r, http.MethodGet, "/admin/scenarios/"+sc.ID+"/users/u1/conversations/"+conv.ID+"/csv", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("csv: %d", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, `"role","text","created_at"`) || !strings.Contains(body, `"say ""hi"""`) {
		t.Fatalf("unexpected csv: %s", body)
	}
	if w := do(t, r, http.MethodGet, "/admin/scenarios/"+sc.ID+"/users/u1/conversations/nope/csv", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation: want 404, got %d", w.Code)
	}
}

func TestGetAnalytics(t *testing.T) {
	f := newFixture(t)
	turn := botReply(t, f)
	do(t, f.router(userSess("u1")), http.MethodPost, "/messages/"+turn.Reply.ID+"/feedback", `{"rating":5}`, nil)

	sum := decode[services.Summary](t, do(t, f.router(adminSess()), http.MethodGet, "/admin/analytics", "", nil))
	if sum.TotalConversations != 1 || sum.AvgMessages != 2 || sum.AvgUserMessages != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(sum.Feedback) != 1 || sum.Feedback[0].Rating != 5 {
		t.Fatalf("feedback: %+v", sum.Feedback)
	}
}
