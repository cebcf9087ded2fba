package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mediagate/internal/auth"
	"mediagate/internal/config"
	"mediagate/internal/core"
	"mediagate/internal/metrics"
	"mediagate/internal/storage"
	"mediagate/internal/upload"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	v := viper.New()
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFileArgs(envFile)...); err != nil {
				return err
			}

			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			setupLogging(cfg.LogLevel)
			return runServer(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&envFile, "env-file", "", "Env file to load (default .env when present)")
	f.String(config.KeyListenAddr, ":8000", "HTTP listen address")
	f.String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	f.String(config.KeyMaxUploadSize, "50MiB", "Largest accepted upload")
	f.Duration(config.KeyPrimaryTimeout, upload.DefaultTimeout, "Timeout for the R2 upload")
	f.Duration(config.KeyFallbackTimeout, upload.DefaultTimeout, "Timeout for the fallback upload")
	f.String(config.KeyFallbackBackend, config.FallbackSupabase, "Fallback backend (supabase, s3, local, none)")
	f.String(config.KeyLocalDataDir, "data", "Data directory of the local fallback")
	_ = v.BindPFlags(f)

	return cmd
}

func envFileArgs(path string) []string {
	if path == "" {
		return nil
	}
	return []string{path}
}

// buildServer wires the storage backends, token verification and metrics
// described by cfg into a Server.
func buildServer(cfg *config.Config, m *metrics.Metrics) (*core.Server, error) {
	httpClient := &http.Client{}

	primary, err := storage.NewR2Storage(cfg.R2, httpClient)
	if err != nil {
		return nil, err
	}

	fallback, mediaRoot, err := buildFallback(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	uploader := upload.New(primary, fallback,
		upload.WithMaxSize(cfg.MaxUploadSize),
		upload.WithTimeouts(cfg.PrimaryTimeout, cfg.FallbackTimeout),
		upload.WithMetrics(m),
	)

	return core.NewServer(core.NewConfig(
		core.WithUploader(uploader),
		core.WithAuthEngine(buildAuthEngine(cfg, httpClient)),
		core.WithMetrics(m),
		core.WithMediaRoot(mediaRoot),
	))
}

func buildFallback(cfg *config.Config, httpClient *http.Client) (storage.ObjectStore, string, error) {
	switch cfg.Fallback.Backend {
	case config.FallbackSupabase:
		store, err := storage.NewSupabaseStorage(storage.SupabaseConfig{
			URL:        cfg.Supabase.URL,
			Bucket:     cfg.Fallback.Bucket,
			APIKey:     cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceRoleKey,
		}, httpClient)
		return store, "", err
	case config.FallbackS3:
		store, err := storage.NewS3Storage(cfg.Fallback.S3)
		return store, "", err
	case config.FallbackLocal:
		dir, err := filepath.Abs(cfg.Fallback.LocalDataDir)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve data directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("failed to create data directory: %w", err)
		}
		return storage.NewLocalFileStorage(dir, cfg.Fallback.Bucket, cfg.Fallback.LocalPublicURL), dir, nil
	default:
		return nil, "", nil
	}
}

// buildAuthEngine prefers local JWT verification and falls back to asking
// Supabase Auth.
func buildAuthEngine(cfg *config.Config, httpClient *http.Client) auth.AuthEngine {
	var engines []auth.AuthEngine
	if cfg.Supabase.JWTSecret != "" {
		engines = append(engines, auth.NewJWTAuthEngine(cfg.Supabase.JWTSecret))
	}
	if cfg.Supabase.URL != "" && cfg.Supabase.AnonKey != "" {
		engines = append(engines, auth.NewSupabaseAuthEngine(cfg.Supabase.URL, cfg.Supabase.AnonKey, httpClient))
	}
	return auth.NewCompoundAuthEngine(engines...)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	slog.Info("Loaded configuration", "config", cfg)

	server, err := buildServer(cfg, metrics.New())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       cfg.PrimaryTimeout + cfg.FallbackTimeout,
		WriteTimeout:      cfg.PrimaryTimeout + cfg.FallbackTimeout + 30*time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting mediagate HTTP server", "addr", cfg.ListenAddr, "version", version)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}
