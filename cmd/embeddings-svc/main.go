// Package main provides the entry point for the embeddings service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zyrak/flux-embeddings/internal/config"
	"github.com/zyrak/flux-embeddings/internal/embedding"
	"github.com/zyrak/flux-embeddings/internal/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Load()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if *debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("version", Version).
		Str("model", cfg.ModelID).
		Msg("Starting flux embeddings service")

	// Resolve and load the model before accepting any traffic. A service
	// without a model must not start.
	modelDir, err := embedding.Resolve(context.Background(), embedding.ResolveOptions{
		LocalPath: cfg.ModelPath,
		ModelID:   cfg.ModelID,
		HubURL:    cfg.HubURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve model")
	}

	model, err := embedding.LoadModel(modelDir, cfg.ONNXRuntimeLib)
	if err != nil {
		log.Fatal().Err(err).Str("dir", modelDir).Msg("Failed to load model")
	}

	svc := server.NewService(model)
	if err := svc.Start(cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	if err := model.Close(); err != nil {
		log.Error().Err(err).Msg("Model close error")
	}

	log.Info().Msg("Embeddings service stopped")
}
