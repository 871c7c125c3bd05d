package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/auth"
	"github.com/msgin/msgin-server/internal/config"
	"github.com/msgin/msgin-server/internal/core"
	"github.com/msgin/msgin-server/internal/fanout"
	"github.com/msgin/msgin-server/internal/media"
	"github.com/msgin/msgin-server/internal/store"
	"github.com/msgin/msgin-server/internal/store/sqlite"
	transporthttp "github.com/msgin/msgin-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	bridge          *fanout.Bridge
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	mediaStore, err := media.NewStore(cfg.MediaDir, "/media", logger)
	if err != nil {
		return nil, fmt.Errorf("init media store: %w", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig)

	registry := core.NewRegistry(logger)

	var bridge *fanout.Bridge
	var publisher core.Publisher
	if cfg.RedisURL != "" {
		bridge, err = fanout.New(cfg.RedisURL, registry, logger)
		if err != nil {
			return nil, fmt.Errorf("init fanout: %w", err)
		}
		publisher = bridge
		logger.Info().Msg("redis fanout enabled")
	}

	delivery := core.NewDelivery(st, registry, mediaStore, publisher, logger)

	server := transporthttp.NewServer(delivery, registry, authService, st, mediaStore, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		bridge:          bridge,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("fanout bridge stopped")
			}
		}()
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fanout bridge")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
