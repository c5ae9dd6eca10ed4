// Package server wires the storage engine, the user service and the HTTP API
// into one runnable application with signal-driven graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/plainlyhq/plainly-core/internal/logging"
	"github.com/plainlyhq/plainly-core/internal/server/config"
	"github.com/plainlyhq/plainly-core/internal/server/engine"
	"github.com/plainlyhq/plainly-core/internal/server/httpapi"
	"github.com/plainlyhq/plainly-core/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	engine *engine.Engine
	api    *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON()

	e, err := engine.Open(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("engine init error: %w", err)
	}

	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if e.Dialect() == engine.DialectPostgres {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	users := services.NewUserService(e.DB(), sb, cfg, logger)
	api := httpapi.New(e, users, cfg, logger)

	return &App{config: cfg, logger: logger, engine: e, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "shutdown error", "error", err)
	}
	return app.engine.Close()
}
