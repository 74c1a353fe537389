// Command server runs the multi-tenant data-plane HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/mattn/go-sqlite3"

	"basehub/internal/api"
	"basehub/internal/app"
	"basehub/internal/config"
	internaldb "basehub/internal/db"
	"basehub/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load .env file (if present)
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	// Control-plane SQLite: single-connection write pool, wider read pool.
	writeDB, err := internaldb.OpenSQLite(cfg.MetaDBPath, "write", 0)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	readDB, err := internaldb.OpenSQLite(cfg.MetaDBPath, "read", 0)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer readDB.Close() //nolint:errcheck

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	application, err := app.New(ctx, app.Deps{
		Cfg:     cfg,
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer application.Close()

	maintenance := application.StartMaintenance(logger.With("component", "maintenance"))
	defer maintenance.Stop()

	handler := api.NewHandler(application.Crud, application.Ddl, application.Schemas, logger.With("component", "api"))
	auth := middleware.NewAuthenticator(cfg.JWTSecret, application.APIKeys, logger.With("component", "auth"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Mount("/", handler.Routes())
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr, "env", cfg.Env)
		logger.Info("try it", "example", fmt.Sprintf("curl http://%s/healthz", curlHostForListenAddr(cfg.ListenAddr)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// curlHostForListenAddr maps a listen address to the host a local client
// would dial, turning wildcard binds into localhost.
func curlHostForListenAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "localhost:8080"
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	default:
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
	}
	return host + ":" + port
}

// newLogger builds the process logger: JSON in production, text elsewhere.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
