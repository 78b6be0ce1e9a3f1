// Package main is the CodeLens CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/internal/embedding"
	"github.com/codelens/codelens/internal/generation"
	"github.com/codelens/codelens/internal/indexer"
	"github.com/codelens/codelens/internal/ingest"
	"github.com/codelens/codelens/internal/models"
	"github.com/codelens/codelens/internal/qa"
	"github.com/codelens/codelens/internal/search"
	"github.com/codelens/codelens/internal/server"
	"github.com/codelens/codelens/internal/storage"
	"github.com/codelens/codelens/internal/vector"
	"github.com/codelens/codelens/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/codelens/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "(defaults)", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index":
		runIndex()
	case "ask":
		runAsk()
	case "version", "--version", "-v":
		fmt.Printf("codelens version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`CodeLens - ask questions about any codebase

Usage:
  codelens server [-config path] [-debug]      start the HTTP API server
  codelens index  [-config path] -dir path     index a local directory
  codelens ask    [-config path] -session id <question ...>
                  [-refactor]                  ask a question about an indexed session
  codelens version                             print version
  codelens help                                print this help

GEMINI_API_KEY must be set (environment or .env file).
`)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Indexer,
		components.Composer,
		components.Storage,
		components.VStore,
		components.Fetcher,
		cfg,
		logger,
		true,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dir := fs.String("dir", "", "directory to index")
	sessionID := fs.String("session", "", "session id to index into (default: new session)")
	_ = fs.Parse(os.Args[2:])

	if *dir == "" {
		fmt.Println("index requires -dir")
		fs.Usage()
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		fmt.Printf("Invalid session id: %s\n", id)
		os.Exit(1)
	}

	abs, err := filepath.Abs(*dir)
	if err != nil {
		fmt.Printf("Invalid directory: %v\n", err)
		os.Exit(1)
	}

	stats, err := components.Indexer.Index(context.Background(), id, abs)
	if err != nil {
		logger.Fatal("Indexing failed", zap.Error(err))
	}

	session := &models.Session{
		ID:         id,
		Source:     abs,
		SourceType: "local",
		Stats:      *stats,
	}
	if err := components.Storage.CreateSession(context.Background(), session); err != nil {
		logger.Warn("failed to save session record", zap.Error(err))
	}

	fmt.Printf("Indexed session %s\n", id)
	fmt.Printf("  files indexed: %d\n", stats.FilesIndexed)
	fmt.Printf("  files skipped: %d\n", stats.FilesSkipped)
	fmt.Printf("  total chunks:  %d\n", stats.TotalChunks)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sessionID := fs.String("session", "", "session id (from 'codelens index')")
	refactor := fs.Bool("refactor", false, "also request refactor suggestions")
	_ = fs.Parse(os.Args[2:])

	if *sessionID == "" {
		fmt.Println("ask requires -session")
		fs.Usage()
		os.Exit(1)
	}
	if _, err := uuid.Parse(*sessionID); err != nil {
		fmt.Printf("Invalid session id: %s\n", *sessionID)
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Println("ask requires a question")
		fs.Usage()
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	result, err := components.Composer.Answer(context.Background(), *sessionID, question, *refactor)
	if err != nil {
		logger.Fatal("Answer failed", zap.Error(err))
	}

	fmt.Println(result.Answer)
	if len(result.Snippets) > 0 {
		fmt.Println("\nSources:")
		for i, sn := range result.Snippets {
			fmt.Printf("  [%d] %s (lines %d-%d)\n", i+1, sn.File, sn.LineStart, sn.LineEnd)
		}
	}
	if result.RefactorSuggestions != "" {
		fmt.Println("\nRefactor suggestions:")
		fmt.Println(result.RefactorSuggestions)
	}
}

// Components holds the wired application dependencies.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	VStore   *vector.Store
	Indexer  *indexer.Indexer
	Composer *qa.Composer
	Fetcher  *ingest.Fetcher

	generator generation.Generator
}

// Close releases all component resources.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.generator != nil {
		_ = c.generator.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set (environment or .env file)")
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, cfg.Answer.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.NewGeminiEmbedder(apiKey, &cfg.Embedding,
		embedding.WithCache(embedding.NewCache(cfg.Embedding.CacheSize)),
		embedding.WithLogger(logger),
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	generator, err := generation.NewGeminiGenerator(apiKey, cfg.Answer.Model)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	vstore, err := vector.NewStore(cfg.Storage.IndexDir)
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	idx := indexer.NewIndexer(embedder, vstore, &cfg.Indexing, indexer.WithLogger(logger))
	searcher := search.NewSearcher(vstore, embedder, search.WithLogger(logger))
	composer := qa.NewComposer(searcher, generator, &cfg.Answer, qa.WithLogger(logger))
	fetcher := ingest.NewFetcher(os.Getenv("GITHUB_TOKEN"), int64(cfg.Indexing.MaxZipMB)<<20)

	return &Components{
		Storage:   store,
		Embedder:  embedder,
		VStore:    vstore,
		Indexer:   idx,
		Composer:  composer,
		Fetcher:   fetcher,
		generator: generator,
	}, nil
}
