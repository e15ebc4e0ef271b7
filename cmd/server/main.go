// Package main provides the entry point for the video summarization API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vidsum/vidsum-api/internal/archive"
	"github.com/vidsum/vidsum-api/internal/config"
	"github.com/vidsum/vidsum-api/internal/engine"
	"github.com/vidsum/vidsum-api/internal/extractor"
	"github.com/vidsum/vidsum-api/internal/queue"
	"github.com/vidsum/vidsum-api/internal/server"
	"github.com/vidsum/vidsum-api/internal/store"
	"github.com/vidsum/vidsum-api/internal/summarizer"
	"github.com/vidsum/vidsum-api/internal/transcriber"
)

// cleanupInterval is how often terminal tasks are swept from memory.
const cleanupInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting summarization API",
		slog.Int("port", cfg.Port),
		slog.String("ollama_url", cfg.OllamaURL),
		slog.String("ollama_model", cfg.OllamaModel),
		slog.String("whisper_model", cfg.WhisperModel),
		slog.String("db_path", cfg.DBPath),
		slog.String("temp_dir", cfg.TempDir),
		slog.Int("max_workers", cfg.MaxWorkers),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	if err := os.MkdirAll(cfg.TempDir, 0750); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	// Durable summary store
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Pipeline adapters
	ffmpeg := extractor.New(cfg.FFmpegBin,
		extractor.WithTimeout(time.Duration(cfg.ExtractorTimeoutSec)*time.Second),
		extractor.WithFFprobePath(cfg.FFprobeBin),
	)

	whisper, err := transcriber.NewWhisperCLI(cfg.WhisperBin, cfg.WhisperModel)
	if err != nil {
		return fmt.Errorf("create transcriber: %w", err)
	}

	ollama := summarizer.NewClient(cfg.OllamaURL, cfg.OllamaModel,
		summarizer.WithTimeout(time.Duration(cfg.SummarizerTimeout)*time.Second),
		summarizer.WithMaxTranscriptChars(cfg.MaxTranscriptChars),
		summarizer.WithPromptBudgetChars(cfg.PromptBudgetChars),
		summarizer.WithLogger(logger),
	)

	// Optional S3 archive for completed versions
	var versionArchive archive.Archive = archive.Disabled{}
	if cfg.S3Enabled() {
		s3Archive, err := archive.NewS3Archive(archive.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		versionArchive = s3Archive
	}

	// Task queue and coordinator
	tasks := queue.New(
		queue.WithMaxWorkers(cfg.MaxWorkers),
		queue.WithLogger(logger),
	)

	eng := engine.New(engine.Deps{
		Store:       db,
		Queue:       tasks,
		Extractor:   ffmpeg,
		Transcriber: whisper,
		Summarizer:  ollama,
		Archive:     versionArchive,
		TempRoot:    cfg.TempDir,
		Logger:      logger,
	})

	tasks.Start()
	defer tasks.Stop()

	// Periodic sweep of terminal tasks
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		retention := time.Duration(cfg.TaskRetentionHours) * time.Hour
		for {
			select {
			case <-cleanupDone:
				return
			case <-ticker.C:
				tasks.Cleanup(retention)
			}
		}
	}()
	defer close(cleanupDone)

	// HTTP handlers and router
	handlers := server.NewHandlers(eng, cfg.WhisperModel, logger)
	router := server.NewRouter(handlers, logger, server.DefaultConfig())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
