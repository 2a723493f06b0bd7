package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"

	"github.com/mmynk/splitbill/internal/auth"
	"github.com/mmynk/splitbill/internal/config"
	"github.com/mmynk/splitbill/internal/handler"
	"github.com/mmynk/splitbill/internal/metrics"
	"github.com/mmynk/splitbill/internal/remote"
	"github.com/mmynk/splitbill/internal/service"
	"github.com/mmynk/splitbill/internal/storage/sqlite"
	"github.com/mmynk/splitbill/pkg/logging"
)

// shareTokenTTL bounds how long a signed share request stays valid.
const shareTokenTTL = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, _ := config.Usage()
			fmt.Println(usage)
			return
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Initialize SQLite storage
	store, err := sqlite.New(cfg.DBPath, sqlite.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("Storage initialized", "database", cfg.DBPath, "schema_version", version)

	httpClient := &http.Client{Timeout: cfg.RemoteTimeout}
	opts := []service.SplitOption{service.WithPolicy(cfg.Policy())}
	if cfg.RecognitionURL != "" {
		opts = append(opts, service.WithRecognizer(remote.NewRecognitionClient(cfg.RecognitionURL, httpClient, m)))
		slog.Info("Receipt recognition enabled", "url", cfg.RecognitionURL)
	}
	if cfg.ShareURL != "" {
		signer := auth.NewJWTManager(cfg.ShareSigningKey, shareTokenTTL)
		opts = append(opts, service.WithSharer(remote.NewShareClient(cfg.ShareURL, signer, httpClient, m)))
		slog.Info("Sharing enabled", "url", cfg.ShareURL)
	}

	var apiAuth *auth.JWTManager
	if cfg.APITokenSecret != "" {
		apiAuth = auth.NewJWTManager(cfg.APITokenSecret, 0)
	} else {
		slog.Warn("API_TOKEN_SECRET is empty; API authentication disabled")
	}

	router := handler.NewRouter(handler.Config{
		Friends:            service.NewFriendService(store),
		Splits:             service.NewSplitService(store, opts...),
		Health:             store,
		Metrics:            m,
		Auth:               apiAuth,
		AllowedOrigins:     cfg.AllowedOrigins(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RemoteTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			"address", cfg.HTTPAddr,
			"assignment_policy", cfg.Policy(),
			"auth", apiAuth != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
