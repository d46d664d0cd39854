package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"file-manager-server/internal/archive"
	"file-manager-server/internal/config"
	"file-manager-server/internal/dispatcher"
	"file-manager-server/internal/filesystem"
	"file-manager-server/internal/lock"
	"file-manager-server/internal/mcp"
	"file-manager-server/internal/transport"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	lockSweepSchedule = "@every 5m"
	staleLockAge      = 30 * time.Minute
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	// zap's production config logs to stderr, which keeps stdout clean for
	// the stdio transport's JSON-RPC traffic.
	logger, err := zap.NewProduction()
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("effective configuration",
		zap.String("downloads", cfg.DownloadsDir),
		zap.String("documents", cfg.DocumentsDir),
		zap.String("transport", cfg.Transport),
		zap.Int("max_archive_size_mb", cfg.MaxArchiveSizeMB),
		zap.Int("operation_timeout_sec", cfg.OperationTimeoutSec))

	fsAdapter := filesystem.NewOSAdapter()
	lockManager := lock.NewFlockManager()
	extractor := archive.NewExtractor(cfg.MaxArchiveEntries, int64(cfg.MaxArchiveSizeMB)*1024*1024*4)
	disp, err := dispatcher.New(fsAdapter, extractor, lockManager, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize dispatcher", zap.Error(err))
	}
	processor := mcp.NewProcessor(disp)

	// Abandoned lock files (e.g. after a kill -9 mid-operation) are swept on
	// a schedule.
	sweeper := cron.New()
	managedDirs := []string{cfg.DownloadsDir, cfg.DocumentsDir}
	if _, err := sweeper.AddFunc(lockSweepSchedule, func() {
		if removed := lockManager.SweepStale(managedDirs, staleLockAge); removed > 0 {
			logger.Info("removed stale lock files", zap.Int("count", removed))
		}
	}); err != nil {
		logger.Fatal("failed to schedule lock sweep", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	serverDoneChan := make(chan error, 1)

	var httpHandler *transport.HTTPHandler
	switch cfg.Transport {
	case "http":
		limiter := transport.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
		httpHandler = transport.NewHTTPHandler(processor, logger, limiter)
		go func() {
			err := httpHandler.Start(cfg.Port, cfg.OperationTimeoutSec, cfg.OperationTimeoutSec)
			if err != nil && err != http.ErrServerClosed {
				serverDoneChan <- err
				return
			}
			serverDoneChan <- nil
		}()
	case "stdio":
		go func() {
			stdioHandler := transport.NewStdioHandler(processor, logger)
			serverDoneChan <- stdioHandler.Start(os.Stdin, os.Stdout)
		}()
	}

	select {
	case sig := <-shutdownChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		if httpHandler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.OperationTimeoutSec)*time.Second)
			defer cancel()
			if err := httpHandler.Shutdown(ctx); err != nil {
				logger.Error("http shutdown error", zap.Error(err))
			}
		}
		// The stdio handler stops on input EOF; process exit covers the
		// signal case.
	case err := <-serverDoneChan:
		if err != nil {
			logger.Error("transport stopped with error", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("transport stopped")
	}
}
