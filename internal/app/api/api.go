package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/host-lifecycle/internal/app/core"
	"github.com/magabrotheeeer/host-lifecycle/internal/config"
	"github.com/magabrotheeeer/host-lifecycle/internal/http-server/mware"
)

// App HTTP-приложение платформы.
type App struct {
	server *http.Server
	logger *slog.Logger
	core   *core.Core
}

// New собирает зависимости и маршрутизатор.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	c, err := core.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependencies: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      NewRouter(logger, c, mware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst)),
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		core:   c,
	}, nil
}

// NewRouter создаёт маршрутизатор поверх собранных зависимостей.
func NewRouter(logger *slog.Logger, c *core.Core, limiter *mware.RateLimiter) http.Handler {
	router := chi.NewRouter()
	RegisterRoutes(router, logger, c, limiter)
	return router
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	defer a.core.Close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		return a.server.Shutdown(timeoutCtx)
	}
}
