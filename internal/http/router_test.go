package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/scenario-chat/internal/config"
	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/services"
	"github.com/tbourn/scenario-chat/internal/session"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

// --- test doubles ---

// tokenSessions maps bearer tokens to sessions.
type tokenSessions map[string]*session.Session

func (m tokenSessions) Resolve(_ context.Context, token string) (*session.Session, error) {
	if s, ok := m[token]; ok {
		return s, nil
	}
	return nil, session.ErrUnauthenticated
}

type echoReplier struct{ calls int }

func (e *echoReplier) Reply(_ context.Context, req webhook.Request) (string, bool, error) {
	e.calls++
	return "echo: " + req.Message, false, nil
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
		Auth:        config.AuthConfig{LoginPath: "/auth"},
		Reply:       config.ReplyConfig{Mode: config.ReplyModeSync, WebhookSecret: "s3cret"},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		// IdempotencyTTL left zero on purpose: handlers default it.
	}
}

type testServer struct {
	r       *gin.Engine
	db      *gorm.DB
	replier *echoReplier
}

func newServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	store := ephemeral.NewMemoryStore(100, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	rep := &echoReplier{}

	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:       db,
		Sessions: tokenSessions{
			"user-token":  {Identity: session.Identity{UserID: "u1", Email: "u1@example.com"}, Role: domain.RoleUser},
			"admin-token": {Identity: session.Identity{UserID: "a1", Email: "a1@example.com"}, Role: domain.RoleAdmin},
		},
		Store:   store,
		Replier: rep,
	}, cfg)
	return &testServer{r: r, db: db, replier: rep}
}

func (s *testServer) do(method, path, token, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

// --- tests ---

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	s := newServer(t, testConfig())

	// /health works
	w := s.do(http.MethodGet, "/health", "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	// /metrics is wired
	w = s.do(http.MethodGet, "/metrics", "", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w := s.do(http.MethodGet, "/nope", "", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	// NoMethod → 405 (POST /health)
	if w := s.do(http.MethodPost, "/health", "", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://app.example.org"}}
	s := newServer(t, cfg)

	w := s.do(http.MethodGet, "/health", "", "", map[string]string{"Origin": "http://app.example.org"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.org" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
}

func TestRegisterRoutes_SessionAndAdminGates(t *testing.T) {
	s := newServer(t, testConfig())

	if w := s.do(http.MethodGet, "/api/v1/session", "", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/session", "bogus", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/session", "user-token", "", nil); w.Code != http.StatusOK {
		t.Fatalf("user session: want 200, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/admin/scenarios", "user-token", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("user on admin: want 403, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/admin/scenarios", "admin-token", "", nil); w.Code != http.StatusOK {
		t.Fatalf("admin on admin: want 200, got %d", w.Code)
	}
}

func TestRegisterRoutes_ChatFlowWithReplay(t *testing.T) {
	s := newServer(t, testConfig())

	w := s.do(http.MethodPost, "/api/v1/conversations", "user-token", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var created struct {
		Conversation services.ConversationItem `json:"conversation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	path := "/api/v1/conversations/" + created.Conversation.ID + "/messages"
	hdr := map[string]string{"Idempotency-Key": uuid.NewString()}

	w = s.do(http.MethodPost, path, "user-token", `{"content":"ping"}`, hdr)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "echo: ping") {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	w = s.do(http.MethodPost, path, "user-token", `{"content":"ping"}`, hdr)
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d %q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if s.replier.calls != 1 {
		t.Fatalf("replier calls = %d", s.replier.calls)
	}

	var n int64
	s.db.Model(&domain.Message{}).Count(&n)
	if n != 2 {
		t.Fatalf("want 2 messages, got %d", n)
	}
}

func TestRegisterRoutes_CallbackNeedsNoSession(t *testing.T) {
	s := newServer(t, testConfig())

	w := s.do(http.MethodPost, "/api/v1/webhooks/reply-callback", "", `{"conversationId":"c","messageId":"m"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: want 401, got %d", w.Code)
	}
	w = s.do(http.MethodPost, "/api/v1/webhooks/reply-callback", "", `{"conversationId":"c","messageId":"m"}`,
		map[string]string{webhook.HeaderSecret: "s3cret"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation: want 404, got %d", w.Code)
	}
}

func TestNewReplier_ByMode(t *testing.T) {
	cfg := testConfig()
	if _, ok := NewReplier(cfg).(services.SyncReplier); !ok {
		t.Fatal("sync mode should build a SyncReplier")
	}
	cfg.Reply.Mode = config.ReplyModeAsync
	if _, ok := NewReplier(cfg).(services.RelayReplier); !ok {
		t.Fatal("async mode should build a RelayReplier")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
