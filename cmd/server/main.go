package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/drivestream/internal/api"
	"github.com/iconidentify/drivestream/internal/api/handler"
	"github.com/iconidentify/drivestream/internal/config"
	"github.com/iconidentify/drivestream/internal/engine"
	"github.com/iconidentify/drivestream/internal/metrics"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("drivestream %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration before the logger so the level applies from the start
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.Level(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting drivestream",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	eng, err := engine.New(cfg, m, api.StreamPath, logger)
	if err != nil {
		return err
	}

	// Initialize handlers
	streamHandler := handler.NewStreamHandler(eng.Resolver, eng.Relay, eng.Composer, logger)
	healthHandler := handler.NewHealthHandler(eng.Extractor)

	// Setup router
	router := api.NewRouter(streamHandler, healthHandler, m, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", srv.Addr, "auth", cfg.Server.APIKey != "")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown; streams still running after the grace period are cut
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", "error", err)
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}
