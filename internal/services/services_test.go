package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/scenario-chat/internal/domain"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func adminSession() *session.Session {
	return &session.Session{Identity: session.Identity{UserID: "admin-1", Email: "admin@example.com"}, Role: domain.RoleAdmin}
}

func userSession(id string) *session.Session {
	return &session.Session{Identity: session.Identity{UserID: id, Email: id + "@example.com"}, Role: domain.RoleUser}
}

func seedScenario(t *testing.T, db *gorm.DB, title, content string) *domain.Scenario {
	t.Helper()
	sc, err := repo.CreateScenario(context.Background(), db, title, content)
	if err != nil {
		t.Fatalf("seed scenario: %v", err)
	}
	return sc
}

func seedAssignment(t *testing.T, db *gorm.DB, userID, scenarioID string) *domain.Assignment {
	t.Helper()
	a, err := repo.CreateAssignment(context.Background(), db, userID, scenarioID)
	if err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	return a
}

func countMessages(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Message{}).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return n
}

// fakeReplier records requests and answers with fixed values.
type fakeReplier struct {
	text     string
	pending  bool
	deferred bool
	err      error
	reqs     []webhook.Request
}

func (f *fakeReplier) Reply(_ context.Context, req webhook.Request) (string, bool, error) {
	f.reqs = append(f.reqs, req)
	return f.text, f.pending, f.err
}

func (f *fakeReplier) Deferred() bool { return f.deferred }

type fixture struct {
	db       *gorm.DB
	store    *ephemeral.MemoryStore
	resolver *ScenarioResolver
	convs    *ConversationService
	exchange *ExchangeService
	replier  *fakeReplier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	store := ephemeral.NewMemoryStore(100, time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	res := &ScenarioResolver{DB: db}
	convs := &ConversationService{DB: db, Store: store, Resolver: res}
	rep := &fakeReplier{text: "hello back"}
	return &fixture{
		db:       db,
		store:    store,
		resolver: res,
		convs:    convs,
		replier:  rep,
		exchange: &ExchangeService{DB: db, Store: store, Conversations: convs, Resolver: res, Replier: rep},
	}
}
