package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trafficdeck/trafficdeck/internal/api"
	"github.com/trafficdeck/trafficdeck/internal/config"
	"github.com/trafficdeck/trafficdeck/internal/editor"
	"github.com/trafficdeck/trafficdeck/internal/httpserver"
	"github.com/trafficdeck/trafficdeck/internal/httpserver/deps"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/metrics"
	"github.com/trafficdeck/trafficdeck/internal/notify"
	"github.com/trafficdeck/trafficdeck/internal/registry"
	"github.com/trafficdeck/trafficdeck/internal/scheduler"
	"github.com/trafficdeck/trafficdeck/internal/stream"
	"github.com/trafficdeck/trafficdeck/internal/version"
)

type App struct {
	cfg       *config.Config
	logger    logger.Logger
	registry  *registry.Registry
	stream    *stream.Manager
	refresher *scheduler.Refresher
	server    *httpserver.Server
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// The registry is the single source of truth; everything below either
	// writes into it (channel frames, snapshot fetches) or reads snapshots.
	reg := registry.New()

	// User-facing status notifications, throttled per category and emitted
	// through the logger.
	throttle := notify.New(cfg.NotifyInterval, func(category notify.Category, message string) {
		loggerClient.Info("notification",
			logger.String("category", string(category)),
			logger.String("message", message))
	})

	client := api.NewClient(api.ClientConfig{
		BaseURL:      cfg.ServerURL,
		ServicesPath: cfg.ServicesPath,
		UpdatePath:   cfg.UpdatePath,
		Timeout:      cfg.HTTPTimeout,
	}, loggerClient)

	ed := editor.New(reg, client, loggerClient)

	router := stream.NewRouter(reg, throttle, loggerClient)
	manager := stream.NewManager(stream.ManagerConfig{
		URL:               cfg.WSURL(),
		ReconnectInterval: cfg.ReconnectInterval,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	}, router, throttle, loggerClient)

	// Manual refresh trigger channel, buffered so a pending trigger
	// coalesces instead of blocking the handler.
	refreshTrigger := make(chan struct{}, 1)
	refresher := scheduler.NewRefresher(client, reg, loggerClient, refreshTrigger)

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		Registry:       reg,
		Stream:         manager,
		Editor:         ed,
		RefreshTrigger: refreshTrigger,
		MetricsHandler: metrics.Default.Handler,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:       cfg,
		logger:    loggerClient,
		registry:  reg,
		stream:    manager,
		refresher: refresher,
		server:    server,
	}
}

func (a *App) Run() error {
	defer func() { _ = a.logger.Sync() }()

	a.logger.Infof("🚀 Starting trafficdeck %s (commit=%s, built=%s, go=%s) on %s",
		version.Version, version.Commit, version.BuildDate, version.GoVersion, a.cfg.ListenPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the registry over HTTP, then serve manual refresh triggers.
	a.refresher.Start(ctx)

	// Open the realtime channel; failures hand over to the reconnect loop.
	a.stream.Start()
	a.logger.Info("realtime sync started",
		logger.String("url", a.cfg.WSURL()),
		logger.Duration("reconnect_interval", a.cfg.ReconnectInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	// Tear the channel down first so no reconnect timer outlives shutdown.
	a.stream.Stop()
	a.refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.logger.Info("✅ trafficdeck stopped cleanly")
	return nil
}
