package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zombor/expense-tracker/internal/config"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", config.Usage())
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Println(version)
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	slog.Info("Initializing database...", "postgres", cfg.UsePostgres())
	db, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	scanner, err := newScanner(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing %s scanner: %w", cfg.Scanner, err)
	}
	defer scanner.Close()

	slog.Info("Initializing storage...", "path", cfg.StoragePath)
	store, err := expense.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	policy, err := cfg.ExtractionPolicy()
	if err != nil {
		return err
	}
	slog.Info("Using extraction policy", "policy", policy.Name(), "skip_subtotal_lines", cfg.SkipSubtotalLines)

	service := expense.NewService(db, scanner, store, policy)
	server := expense.NewServer(service, expense.BasicAuth{
		Username: cfg.AuthUser,
		Password: cfg.AuthPass,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(cfg.Addr())
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", cfg.Addr()), "version", version)
	if cfg.AuthUser != "" {
		slog.Info("Basic auth enabled", "user", cfg.AuthUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-sigChan:
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, cfg *config.Config) (expense.DB, error) {
	if cfg.UsePostgres() {
		return expense.NewPostgresDB(ctx, cfg.DatabaseURL)
	}
	return expense.NewBoltDB(cfg.DBPath)
}

func newScanner(ctx context.Context, cfg *config.Config) (scanning.Scanner, error) {
	var (
		scanner scanning.Scanner
		err     error
	)

	switch cfg.Scanner {
	case config.ScannerVision:
		slog.Info("Initializing Vision scanner...")
		scanner, err = scanning.NewVision(ctx, cfg.VisionCredentials)
	case config.ScannerGemini:
		slog.Info("Initializing Gemini scanner...", "model", cfg.GeminiModel)
		scanner, err = scanning.NewGemini(cfg.GeminiKey, cfg.GeminiModel)
	case config.ScannerOllama:
		slog.Info("Initializing Ollama scanner...", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		scanner, err = scanning.NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown scanner %q", cfg.Scanner)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Preprocess {
		slog.Info("Preprocessing receipts before OCR")
		scanner = scanning.WithPreprocessing(scanner)
	}
	return scanner, nil
}
