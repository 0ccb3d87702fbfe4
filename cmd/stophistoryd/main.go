// Package main implements the stophistoryd service: an HTTP front for the
// per-stop arrival/departure history cache. Ingestion workers POST observed
// events, prediction and reporting consumers GET recent per-stop history.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/transitwatch/stophistory/cmd/stophistoryd/config"
	"github.com/transitwatch/stophistory/cmd/stophistoryd/logger"
	"github.com/transitwatch/stophistory/cmd/stophistoryd/metrics"
	"github.com/transitwatch/stophistory/cmd/stophistoryd/router"
	"github.com/transitwatch/stophistory/cmd/stophistoryd/store"
	"github.com/transitwatch/stophistory/pkg/httpx"
	"github.com/transitwatch/stophistory/pkg/stophistory"
)

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting stophistoryd",
		"version", "v0.1.0",
		"storage", cfg.Storage,
		"ttl", cfg.TTL,
		"timezone", cfg.Timezone,
	)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid reference timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	kv := store.New(cfg, logger)
	defer kv.Close()

	cache := stophistory.New(kv, stophistory.Config{
		Prefix:       cfg.KeyPrefix,
		TTL:          cfg.TTL,
		Location:     location,
		StoreTimeout: cfg.StoreTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		DegradeReads: cfg.DegradeReads,
	}, logger)

	m := metrics.New()
	healthCheck := router.PingCheck(kv.Ping, cfg.StoreTimeout)
	handler := router.SetupRoutes(cache, healthCheck, m, logger)
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
