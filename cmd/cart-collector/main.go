package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/carttracker/internal/collector"
	"github.com/gosight/gosight/carttracker/internal/config"
	"github.com/gosight/gosight/carttracker/internal/enricher"
	"github.com/gosight/gosight/carttracker/internal/ratelimit"
	"github.com/gosight/gosight/carttracker/internal/sink"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/carttracker.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().
		Str("sink", cfg.Sink.Driver).
		Str("path", cfg.Collector.Path).
		Str("redis_addr", cfg.Redis.Addr).
		Msg("Starting cart event collector...")

	// Initialize dependencies
	eventSink, err := sink.Open(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Sink.Driver).Msg("Failed to open sink")
	}
	defer eventSink.Close()
	log.Info().Str("driver", cfg.Sink.Driver).Msg("Sink initialized")

	limiter := ratelimit.New(cfg)
	defer limiter.Close()

	eventEnricher := enricher.NewEnricher(cfg.GeoIP.DatabasePath)
	defer eventEnricher.Close()
	log.Info().Msg("Enricher initialized")

	handler := collector.NewHTTPHandler(eventSink, limiter, eventEnricher)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Collector.HTTPPort),
		Handler:           collector.NewRouter(cfg.Collector, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Collector.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
