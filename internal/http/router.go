// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, session resolution, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - One session resolver and one reply integration per process, injected
//   - Admin routes gated twice: RequireAdmin here, role checks in services
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/scenario-chat/internal/config"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	"github.com/tbourn/scenario-chat/internal/http/handlers"
	"github.com/tbourn/scenario-chat/internal/http/middleware"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/services"
	"github.com/tbourn/scenario-chat/internal/webhook"
)

// maxPromptRunes caps a single user message.
const maxPromptRunes = 4000

// Deps are the long-lived collaborators built once at start-up.
type Deps struct {
	DB       *gorm.DB
	Sessions middleware.SessionResolver
	Store    ephemeral.Store
	// Replier overrides the one built from cfg.Reply. Tests use it.
	Replier services.Replier
}

// NewReplier builds the reply integration selected by cfg.Reply.Mode.
func NewReplier(cfg config.Config) services.Replier {
	if cfg.Reply.Mode == config.ReplyModeAsync {
		return services.RelayReplier{Client: webhook.NewRelayClient(cfg.Reply.RelayURL, cfg.Reply.WebhookSecret, cfg.CallbackURL(), cfg.Reply.Timeout)}
	}
	return services.SyncReplier{Client: webhook.NewSyncClient(cfg.Reply.WebhookURL, cfg.Reply.Timeout)}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics and gzip
//  7. CORS and Security headers
//
// and per group:
//  8. RequireSession (API) so the caller is known
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user, or per IP on the callback)
//  11. RequireAdmin (admin group)
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint; compressed responses
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Content-Disposition", "ETag"},
			AllowCredentials: true, // the access_token cookie
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/store/replier
	replier := d.Replier
	if replier == nil {
		replier = NewReplier(cfg)
	}
	resolver := &services.ScenarioResolver{DB: d.DB}
	convs := &services.ConversationService{DB: d.DB, Store: d.Store, Resolver: resolver}
	h := handlers.New(handlers.Deps{
		DB:            d.DB,
		Scenarios:     &services.ScenarioService{DB: d.DB},
		Assignments:   &services.AssignmentService{DB: d.DB},
		Resolver:      resolver,
		Conversations: convs,
		Exchange: &services.ExchangeService{
			DB:             d.DB,
			Store:          d.Store,
			Conversations:  convs,
			Resolver:       resolver,
			Replier:        replier,
			MaxPromptRunes: maxPromptRunes,
		},
		Feedback:       &services.FeedbackService{DB: d.DB},
		Review:         &services.ReviewService{DB: d.DB},
		Analytics:      &services.AnalyticsService{DB: d.DB},
		ReplyMode:      cfg.Reply.Mode,
		WebhookSecret:  cfg.Reply.WebhookSecret,
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxPromptRunes: maxPromptRunes,
	})

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	base := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"

	// Relay callback: no session, guarded by the shared secret.
	hooks := base.Group("/webhooks", rl.Handler())
	hooks.POST("/reply-callback", h.ReplyCallback)

	api := base.Group("")
	api.Use(
		middleware.RequireSession(d.Sessions, cfg.Auth.LoginPath),
		middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{MaxLen: 200},
			func(ctx context.Context, userID, conversationID, key string, now time.Time) (bool, error) {
				if d.DB == nil {
					return false, nil
				}
				rec, err := repo.GetIdempotency(ctx, d.DB, userID, conversationID, key, now)
				if err != nil || rec == nil {
					return false, nil
				}
				return true, nil
			},
		),
		rl.Handler(),
	)
	{
		api.GET("/session", h.GetSession)

		// Scenario in effect
		api.GET("/chat/scenario", h.ResolveScenario)
		api.PUT("/chat/scenario", h.EditScenario)
		api.GET("/me/scenarios", h.MyScenarios)

		// Conversations
		api.GET("/conversations", h.ListConversations)
		api.POST("/conversations", h.CreateConversation)
		api.GET("/conversations/:id", h.GetConversation)
		api.DELETE("/conversations/:id/messages", h.ClearConversation)
		api.POST("/conversation-groups/:key/toggle", h.ToggleGroup)

		// Messages
		api.POST("/conversations/:id/messages", h.PostMessage)
		api.POST("/messages", h.StartConversation)

		// Exports
		api.GET("/conversations/:id/export/csv", h.ExportCSV)
		api.GET("/conversations/:id/export/pdf", h.ExportPDF)

		// Feedback
		api.POST("/messages/:id/feedback", h.LeaveFeedback)
	}

	admin := api.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/scenarios", h.ListScenarios)
		admin.POST("/scenarios", h.CreateScenario)
		admin.GET("/scenarios/:id", h.GetScenario)
		admin.PUT("/scenarios/:id", h.UpdateScenario)
		admin.DELETE("/scenarios/:id", h.DeleteScenario)
		admin.GET("/scenarios/:id/users", h.ScenarioUsers)
		admin.GET("/scenarios/:id/users/:userId/conversations", h.ReviewConversations)
		admin.GET("/scenarios/:id/users/:userId/conversations/:convId/csv", h.ExportReviewCSV)

		admin.GET("/users", h.ListUsers)
		admin.GET("/users/:userId/assignments", h.ListUserAssignments)
		admin.POST("/users/:userId/assignments", h.AssignScenario)
		admin.POST("/users/:userId/scenarios/:scenarioId/toggle", h.ToggleAssignment)

		admin.GET("/analytics", h.GetAnalytics)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
