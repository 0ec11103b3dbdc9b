package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
)

// BackgroundWorker runs until its context is cancelled.
type BackgroundWorker interface {
	Run(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Dispatcher    BackgroundWorker
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	dispatcher BackgroundWorker,
) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
		Dispatcher:    dispatcher,
	}
}

// Run serves HTTP and dispatches the outbox until ctx is cancelled or the
// listener fails, then shuts everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	dispatcherCtx, stopDispatcher := context.WithCancel(gctx)
	defer stopDispatcher()
	if a.Dispatcher != nil {
		g.Go(func() error { return a.Dispatcher.Run(dispatcherCtx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutdown started")
		a.shutdownHTTP()
		stopDispatcher()
		return nil
	})

	err := g.Wait()
	a.closeResources()
	return err
}

func (a *App) shutdownHTTP() {
	ctx, cancel := context.WithTimeout(context.Background(), durationOr(a.Config.ShutdownHTTPDrainTimeout, 10*time.Second))
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("failed to shutdown http server", "error", err)
	}
}

func (a *App) closeResources() {
	totalCtx, totalCancel := context.WithTimeout(context.Background(), durationOr(a.Config.ShutdownTimeout, 20*time.Second))
	defer totalCancel()

	if a.Observability != nil {
		obsCtx, obsCancel := context.WithTimeout(totalCtx, durationOr(a.Config.ShutdownObservabilityTimeout, 8*time.Second))
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("failed to shutdown observability", "error", err)
		}
		obsCancel()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
			}
		}
	}
	if err := observability.CloseLogFile(); err != nil {
		a.Logger.Error("failed to close log file", "error", err)
	}
	a.Logger.Info("shutdown complete")
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
