package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/tbourn/scenario-chat/docs"
	"github.com/tbourn/scenario-chat/internal/config"
	"github.com/tbourn/scenario-chat/internal/ephemeral"
	httpapi "github.com/tbourn/scenario-chat/internal/http"
	"github.com/tbourn/scenario-chat/internal/observability"
	"github.com/tbourn/scenario-chat/internal/repo"
	"github.com/tbourn/scenario-chat/internal/session"
	"github.com/tbourn/scenario-chat/internal/sysutil"
)

var shutdownGrace time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API until SIGINT or SIGTERM.

The schema is migrated on start. In-flight requests get --grace to finish
before the listener is torn down.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownGrace, "grace", 15*time.Second, "graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := sysutil.SignalContext(cmd.Context())
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, Version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := repo.Close(db); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store, err := newStore(cfg.Ephemeral)
	if err != nil {
		return fmt.Errorf("ephemeral store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close ephemeral store")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Sessions: session.NewResolver(db, session.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Audience)),
		Store:    store,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("reply_mode", cfg.Reply.Mode).
			Str("store", cfg.Ephemeral.Backend).
			Str("db", cfg.DB.Driver).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("grace", shutdownGrace).Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newStore(ec config.EphemeralConfig) (ephemeral.Store, error) {
	if ec.Backend == config.StoreRedis {
		rs, err := ephemeral.NewRedisStore(ec.RedisAddr, ec.RedisPassword, ec.RedisDB, ec.TTL)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	return ephemeral.NewMemoryStore(ec.MaxEntries, ec.TTL), nil
}
