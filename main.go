package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pgbackup/cmd"
	"pgbackup/internal/logger"
)

// Build information, set by ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logLevel := os.Getenv("PGBACKUP_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("PGBACKUP_LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}
	log := logger.New(logLevel, logFormat)
	log.Info("pgbackup starting", "version", version, "build_time", buildTime, "commit", gitCommit)

	if err := cmd.Execute(ctx, log, version); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}
