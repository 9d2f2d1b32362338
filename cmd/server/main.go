package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/rootcause-ml/internal/config"
	"github.com/Brownie44l1/rootcause-ml/internal/encoder"
	"github.com/Brownie44l1/rootcause-ml/internal/handlers"
	"github.com/Brownie44l1/rootcause-ml/internal/inference"
	"github.com/Brownie44l1/rootcause-ml/internal/logging"
	"github.com/Brownie44l1/rootcause-ml/internal/metrics"
	"github.com/Brownie44l1/rootcause-ml/internal/model"
	"github.com/Brownie44l1/rootcause-ml/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", os.Getenv("ROOTCAUSE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load configuration", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	logging.Init(cfg.Logging.JSON, level)

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	slog.Info("loading models",
		"disease_model", cfg.Models.DiseaseModelPath,
		"yield_model", cfg.Models.YieldModelPath,
		"encoders", cfg.Models.EncodersPath,
	)
	registry, err := model.Load(cfg.Models)
	if err != nil {
		fatal("failed to initialize model registry", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			slog.Error("failed to close models", "error", err)
		}
		if err := model.DestroyRuntime(); err != nil {
			slog.Error("failed to destroy onnx runtime", "error", err)
		}
	}()
	slog.Info("models loaded", "classes", registry.Labels())

	m := metrics.New()
	resolver := encoder.NewResolver(encoder.DefaultFallbacks(),
		encoder.WithSubstitutionHook(m.ObserveSubstitution),
	)
	handler := handlers.NewHandler(
		inference.NewDiseaseService(registry, m),
		inference.NewYieldService(registry, resolver, m),
		m,
		cfg.Server.MaxUploadBytes,
	)

	limiter := ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 0,
		ratelimit.WithRejectHook(m.ObserveRateLimited),
	)
	e := handlers.NewServer(handler, m, logging.EchoLevel(level), limiter.Middleware())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

func shutdownTimeout(cfg config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout <= 0 {
		return time.Second
	}
	return cfg.Server.ShutdownTimeout
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
