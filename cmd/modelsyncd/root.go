package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelsyncd/internal/config"
	"modelsyncd/internal/gateway"
	"modelsyncd/internal/httpapi"
	"modelsyncd/internal/lifecycle"
	"modelsyncd/internal/store"
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		addr        string
		backendURL  string
		dataDir     string
		logLevel    string
		corsOrigins []string
	)

	root := &cobra.Command{
		Use:           "modelsyncd",
		Short:         "Client-side model lifecycle state synchronizer",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{
				Addr:       addr,
				BackendURL: backendURL,
				DataDir:    dataDir,
				LogLevel:   logLevel,
			}
			if cfgPath != "" {
				fileCfg, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				// File values fill whatever flags and env left unset.
				if cfg.Addr == "" {
					cfg.Addr = fileCfg.Addr
				}
				if cfg.BackendURL == "" {
					cfg.BackendURL = fileCfg.BackendURL
				}
				if cfg.DataDir == "" {
					cfg.DataDir = fileCfg.DataDir
				}
				if cfg.LogLevel == "" {
					cfg.LogLevel = fileCfg.LogLevel
				}
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8090"
			}
			if cfg.BackendURL == "" {
				cfg.BackendURL = "http://127.0.0.1:9090"
			}
			if cfg.DataDir == "" {
				cfg.DataDir = "~/.modelsyncd"
			}
			return run(cfg, corsOrigins)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", os.Getenv("MODELSYNC_CONFIG"), "Path to config file (yaml/json/toml)")
	root.Flags().StringVar(&addr, "addr", envDefault("MODELSYNC_ADDR", ""), "HTTP listen address, e.g. :8090")
	root.Flags().StringVar(&backendURL, "backend", envDefault("MODELSYNC_BACKEND", ""), "Base URL of the backend daemon")
	root.Flags().StringVar(&dataDir, "data-dir", envDefault("MODELSYNC_DATA_DIR", ""), "Directory for the snapshot cache")
	root.Flags().StringVar(&logLevel, "log-level", envDefault("MODELSYNC_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.Flags().StringSliceVar(&corsOrigins, "cors-origin", nil, "Allowed CORS origins (repeatable; empty disables CORS)")

	return root
}

func run(cfg config.Config, corsOrigins []string) error {
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir, err := config.ExpandHome(cfg.DataDir)
	if err != nil {
		return err
	}
	cache, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer cache.Close()

	commander := gateway.NewHTTPCommander(cfg.BackendURL, nil, logger)
	events := gateway.NewStreamSource(cfg.BackendURL, nil, logger)

	rec := lifecycle.New(lifecycle.Config{
		Gateway: commander,
		Events:  events,
		Cache:   cache,
		Logger:  logger,
	})

	// Seed the projection from the last persisted snapshot so readers see
	// data before the first backend refresh lands.
	if models, active, err := cache.LoadSnapshot(); err != nil {
		logger.Warn().Err(err).Msg("snapshot cache load failed")
	} else if len(models) > 0 {
		rec.WarmStart(models, active)
	}

	if err := rec.Start(ctx); err != nil {
		return err
	}

	httpapi.SetLogger(logger)
	httpapi.SetHistoryProvider(cache)
	if len(corsOrigins) > 0 {
		httpapi.SetCORSOptions(true, corsOrigins,
			[]string{"GET", "POST", "DELETE"},
			[]string{"Content-Type", "X-Request-Id"})
	}
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(rec)}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("backend", cfg.BackendURL).Msg("modelsyncd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
