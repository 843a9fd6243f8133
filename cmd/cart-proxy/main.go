package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosight/gosight/carttracker/internal/config"
	"github.com/gosight/gosight/carttracker/internal/proxy"
	"github.com/gosight/gosight/carttracker/internal/tracker"
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
	if cfg.Proxy.Upstream == "" {
		log.Fatal().Msg("proxy.upstream is required")
	}

	tr := tracker.New(cfg.Tracker.Endpoint, http.DefaultTransport, tracker.FromConfig(cfg.Tracker)...)

	p, err := proxy.New(cfg.Proxy.Upstream, tr, http.DefaultTransport, cfg.Tracker.Selectors)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create proxy")
	}

	httpServer := &http.Server{
		Addr:              cfg.Proxy.Listen,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("listen", cfg.Proxy.Listen).
			Str("upstream", cfg.Proxy.Upstream).
			Str("endpoint", tr.Reporter().Endpoint()).
			Msg("Starting cart proxy")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down proxy...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)

	// Let in-flight reports finish
	tr.Wait()
	log.Info().Msg("Proxy stopped")
}
