// driftlaked is the storage engine daemon. It hosts the engine
// service, runs the periodic checkpoint worker and exposes Prometheus
// metrics over HTTP.
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

	defaults "github.com/driftlake/driftlake/config"
	"github.com/driftlake/driftlake/internal/logging"
	"github.com/driftlake/driftlake/internal/storage"
	"github.com/driftlake/driftlake/internal/storage/config"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	metricsListen := flag.String("metrics-listen", defaults.DefaultMetricsListen, "metrics HTTP listen address")
	checkpointEvery := flag.Duration("checkpoint-interval", 0, "checkpoint interval (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	jsonLogs := flag.Bool("json-logs", false, "emit JSON logs")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLogs)
	log := logging.Component("driftlaked")

	log.Info("starting", "version", Version)

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("no config file found, using defaults", "path", *cfgPath)
			cfg = config.DefaultConfig()
		} else {
			log.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *checkpointEvery > 0 {
		cfg.WAL.CheckpointInterval = *checkpointEvery
	}

	svc, err := storage.New(cfg)
	if err != nil {
		log.Error("create storage service", "error", err)
		os.Exit(1)
	}

	if err := svc.Start(); err != nil {
		log.Error("start storage service", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", svc.Metrics().Handler())
	httpSrv := &http.Server{
		Addr:    *metricsListen,
		Handler: mux,
	}
	go func() {
		log.Info("metrics listening", "addr", *metricsListen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(),
		defaults.DefaultDrainTimeoutSec*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown", "error", err)
	}
	if err := svc.Stop(); err != nil {
		log.Error("stop storage service", "error", err)
		os.Exit(1)
	}

	log.Info("stopped")
}
