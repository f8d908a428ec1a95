package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"recipeharvest/internal/api"
	"recipeharvest/internal/config"
	"recipeharvest/internal/pipeline"
	"recipeharvest/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to engine configuration")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := pipeline.FromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	store, err := storage.Open(cfg.DB)
	if err != nil {
		log.Fatalf("failed to open parse log store: %v", err)
	}
	if store != nil {
		defer store.Close()
	}

	server := api.NewServer(engine, store, logger)
	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}()

	logger.Info("api server listening", "addr", *addr, "render_enabled", cfg.Fetch.RenderEnabled)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("api server stopped")
}

// loadConfig falls back to defaults when the default config file is absent;
// an explicitly provided path must exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(errors.Unwrap(err)) && path == "configs/config.yaml" {
		defaults := config.Default()
		return &defaults, nil
	}
	return nil, err
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
