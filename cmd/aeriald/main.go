package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"aerial/internal/config"
	"aerial/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, resolvedPath, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "aeriald.log")},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, store, err := buildDaemon(cfg, logger)
	if err != nil {
		logger.Error("daemon bootstrap failed", logging.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	if err := d.Run(ctx, resolvedPath); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exited", logging.Error(err))
		os.Exit(1)
	}
}
