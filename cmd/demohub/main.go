package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"

	"github.com/v3labs/demohub/hub/audit"
	"github.com/v3labs/demohub/hub/config"
	"github.com/v3labs/demohub/hub/metrics"
	"github.com/v3labs/demohub/hub/processes"
	"github.com/v3labs/demohub/hub/proxy"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	logger.Info("Starting demohub")

	cfg, err := config.LoadOrDefault(config.DefaultPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	workDir, err := os.Getwd()
	if err != nil {
		logger.Error("Failed to get current working directory", "error", err)
		os.Exit(1)
	}
	logger.Info("Configuration loaded", "listen", cfg.Listen, "apps", len(cfg.EnabledApps()), "workDir", workDir)

	db, err := sqlx.Connect("sqlite3", cfg.AuditDBPath)
	if err != nil {
		logger.Error("Failed to open audit database", "path", cfg.AuditDBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	auditLogger, err := audit.NewLogger(db)
	if err != nil {
		logger.Error("Failed to initialize audit log", "error", err)
		os.Exit(1)
	}

	portManager, err := processes.NewPortManager(cfg.PortRange.Min, cfg.PortRange.Max)
	if err != nil {
		logger.Error("Failed to create PortManager", "error", err)
		os.Exit(1)
	}

	launcher := processes.NewLauncher(cfg.Installer, workDir, logger)
	provider := processes.NewConfigProvider(cfg)

	processManager, err := processes.NewProcessManager(processes.Config{
		Provider:               provider,
		PortManager:            portManager,
		Launcher:               launcher,
		Logger:                 logger,
		HealthCheckInterval:    cfg.HealthCheckInterval,
		HealthCheckTimeout:     cfg.HealthCheckTimeout,
		RestartBackoffInitial:  cfg.RestartBackoffInitial,
		RestartBackoffMax:      cfg.RestartBackoffMax,
		GracefulShutdownPeriod: cfg.GracefulShutdownPeriod,
		OnReady: func() {
			logger.Info("All apps healthy, hub is ready")
		},
		RestartNotify: metrics.RecordAppRestart,
	})
	if err != nil {
		logger.Error("Failed to create ProcessManager", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpProxy := proxy.NewProxy(cfg.Listen, processManager, auditLogger, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpProxy.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping proxy server", "error", err)
		}

		processManager.Stop()
		cancel()
	}()

	go func() {
		if err := httpProxy.Start(func(net.Listener) context.Context { return ctx }); err != nil && err != http.ErrServerClosed {
			logger.Error("Proxy server failed", "error", err)
			// The hub is useless without its front door.
			sigChan <- syscall.SIGTERM
		}
	}()

	logger.Info("Running ProcessManager")
	processManager.Run(ctx)
	<-ctx.Done()

	logger.Info("demohub shutdown complete")
}
