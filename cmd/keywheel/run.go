package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"keywheel-hq/keywheel/pkg/config"
	"keywheel-hq/keywheel/pkg/dispatch"
	"keywheel-hq/keywheel/pkg/history"
	"keywheel-hq/keywheel/pkg/pool"
	"keywheel-hq/keywheel/pkg/ratelimit"
	"keywheel-hq/keywheel/pkg/server"
	"keywheel-hq/keywheel/pkg/settings"
	"keywheel-hq/keywheel/pkg/store"
	"keywheel-hq/keywheel/pkg/telemetry/logging"
	"keywheel-hq/keywheel/pkg/telemetry/metrics"
	"keywheel-hq/keywheel/pkg/tokenpool"
	"keywheel-hq/keywheel/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Keywheel proxy server",
	Long: `Start the proxy server with the specified configuration.

Examples:
  # Start with default config
  keywheel run

  # Start with custom config
  keywheel run --config /etc/keywheel/config.yaml

  # Override listen address
  keywheel run --listen 0.0.0.0:8080

  # Validate config without starting server
  keywheel run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddr = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		RedactSecrets: cfg.RedactSecrets(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	// Settings: file-backed with hot reload when configured, built-in
	// defaults otherwise.
	var settingsProvider settings.Provider
	if cfg.Settings.File != "" {
		fileProvider, err := settings.NewFileProvider(cfg.Settings.File)
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if err := fileProvider.Watch(); err != nil {
			return fmt.Errorf("failed to watch settings file: %w", err)
		}
		defer fileProvider.Stop()
		settingsProvider = fileProvider
	} else {
		settingsProvider = settings.NewStatic(settings.Default())
	}

	backend, err := store.NewSQLiteBackend(cfg.Storage.CredentialDB)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	defer backend.Close()

	registry := metrics.NewRegistry()

	poolManager, err := pool.NewManager(pool.ManagerConfig{
		Store:    backend,
		Settings: settingsProvider,
		Logger:   logger,
		Metrics:  registry.Pool,
	})
	if err != nil {
		return err
	}

	client, err := upstream.NewClient(upstream.ClientConfig{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var recorder dispatch.Recorder
	var dispatchLog *history.Log
	if cfg.Storage.HistoryDB != "" {
		dispatchLog, err = history.NewLog(history.LogConfig{
			DBPath:    cfg.Storage.HistoryDB,
			Retention: cfg.Storage.HistoryRetention,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("failed to open dispatch log: %w", err)
		}
		defer dispatchLog.Close()
		recorder = dispatchLog
	}

	orchestrator, err := dispatch.NewOrchestrator(dispatch.OrchestratorConfig{
		Pool:     poolManager,
		Caller:   client,
		Settings: settingsProvider,
		Recorder: recorder,
		Logger:   logger,
		Metrics:  registry.Dispatch,
	})
	if err != nil {
		return err
	}

	if cfg.Sync.Enabled {
		accountClient, err := upstream.NewAccountClient(upstream.AccountClientConfig{
			BaseURL: cfg.Upstream.AccountBaseURL,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		tokenManager, err := tokenpool.NewManager(tokenpool.ManagerConfig{
			Store:    backend.TokenView(),
			Account:  accountClient,
			Settings: settingsProvider,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		scheduler, err := tokenpool.NewScheduler(tokenpool.SchedulerConfig{
			Manager:  tokenManager,
			Profiles: cfg.Sync.Profiles,
			Schedule: cfg.Sync.Schedule,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Orchestrator:   orchestrator,
		Pool:           poolManager,
		Limiter:        ratelimit.NewLimiter(settingsProvider),
		History:        dispatchLog,
		MetricsHandler: registry.Handler(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
