package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/utat-ss/hermes/internal/api"
	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/health"
	"github.com/utat-ss/hermes/internal/metrics"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/tle"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: "Start the HTTP API. Settings come from HERMES_* environment variables; " +
		"SIGHUP reloads the catalog file.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveEnvFile string

func init() {
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "file of HERMES_* variables loaded before the environment is read")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Variables already set in the environment win over the file.
	if err := godotenv.Load(serveEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load env file", "path", serveEnvFile, "error", err)
	}
	cfg, err := config.ServerFromEnv(logger)
	if err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}
	level := cfg.LogLevel
	if f := cmd.Flag("log-level"); f != nil && f.Changed {
		level.UnmarshalText([]byte(logLevel))
	}
	out, err := logOutput(cfg.LogOutput)
	if err != nil {
		return err
	}
	defer out.Close()
	logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))

	store := tle.NewStore()
	checker := &health.Checker{}
	if cfg.CatalogPath != "" {
		if err := loadCatalog(store, cfg.CatalogPath, logger); err != nil {
			logger.Warn("starting without catalog", "path", cfg.CatalogPath, "error", err)
		}
		checker.Add("catalog", func() error {
			if store.Get() == nil {
				return errors.New("no catalog loaded")
			}
			return nil
		})
	}

	cache := propagation.NewConstantsCache()
	if err := metrics.RegisterCacheStats(prometheus.DefaultRegisterer, func() (int64, int64) {
		st := cache.Stats()
		return st.Hits, st.Misses
	}); err != nil {
		return fmt.Errorf("register cache metrics: %w", err)
	}

	srv := api.NewServer(cfg, api.Deps{
		Logger:  logger,
		Catalog: store,
		Cache:   cache,
		Health:  checker,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.PruneClients(ctx, time.Minute)

	if cfg.CatalogPath != "" {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-hup:
					if err := loadCatalog(store, cfg.CatalogPath, logger); err != nil {
						logger.Error("catalog reload failed, keeping current catalog", "path", cfg.CatalogPath, "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadCatalog(store *tle.Store, path string, logger *slog.Logger) error {
	c, err := tle.LoadCatalog(path, logger)
	if err != nil {
		return err
	}
	store.Set(c)
	metrics.SetCatalogSize(len(c.Sets))
	logger.Info("loaded catalog",
		"path", path,
		"count", len(c.Sets),
		"epoch_min", c.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", c.EpochRange.Max.Format(time.RFC3339),
	)
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// logOutput opens the server log destination. File paths are rotated at
// 100 MB and kept for a week.
func logOutput(dest string) (io.WriteCloser, error) {
	switch dest {
	case "", "stdout":
		return nopCloser{os.Stdout}, nil
	case "stderr":
		return nopCloser{os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename: dest,
		MaxSize:  100,
		MaxAge:   7,
		Compress: true,
	}, nil
}
