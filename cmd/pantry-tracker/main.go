package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/pantry-tracker/internal/cache"
	"github.com/zombor/pantry-tracker/internal/foodkb"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/recipe"
	"github.com/zombor/pantry-tracker/internal/resolver"
	"github.com/zombor/pantry-tracker/internal/scanning"
	"github.com/zombor/pantry-tracker/internal/standardize"
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

	fs := ff.NewFlagSet("pantry-tracker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "pantry-tracker.db", "Database file path")
		stdType       = fs.StringLong("standardizer", "gemini", "Name standardizer: 'gemini', 'openai' or 'none'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-1.5-flash", "Google Gemini model name")
		openaiKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel   = fs.StringLong("openai-model", "gpt-4o-mini", "OpenAI model name")
		openaiBaseURL = fs.StringLong("openai-base-url", "", "OpenAI-compatible API base URL (optional)")
		aiTimeout     = fs.DurationLong("ai-timeout", standardize.DefaultTimeout, "Timeout for one standardization call")
		aiRate        = fs.Float64Long("ai-rate", 2, "Standardization calls per second (0 disables limiting)")
		cacheType     = fs.StringLong("cache", "memory", "Standardization cache: 'memory' or 'bolt'")
		cacheTTL      = fs.DurationLong("cache-ttl", standardize.DefaultTTL, "How long standardization replies are cached")
		scannerType   = fs.StringLong("scanner", "gemini", "Receipt scanner: 'gemini', 'ollama' or 'none'")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		recipeModel   = fs.StringLong("recipe-model", "llama2", "Ollama model used for recipe suggestions")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PANTRY_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx := context.Background()

	kb, err := foodkb.LoadDefault()
	if err != nil {
		slog.Error("Failed to load food knowledge base", "error", err)
		os.Exit(1)
	}

	slog.Info("Initializing database...", "path", *dbPath)
	store, err := pantry.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var c cache.Cache
	switch *cacheType {
	case "memory":
		c = cache.NewMemoryCache(*cacheTTL, 10*time.Minute)
	case "bolt":
		c, err = cache.NewBoltCache(store.DB(), *cacheTTL)
		if err != nil {
			slog.Error("Failed to initialize cache", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid cache type", "type", *cacheType, "valid", "memory or bolt")
		os.Exit(1)
	}

	apiKey := func(flag, env string) string {
		if flag != "" {
			return flag
		}
		return os.Getenv(env)
	}

	// A missing credential leaves the provider nil; names are then
	// resolved from the knowledge base only.
	var provider standardize.Provider
	switch *stdType {
	case "gemini":
		key := apiKey(*geminiKey, "GEMINI_API_KEY")
		if key == "" {
			slog.Warn("No Gemini API key, standardization will use the knowledge base only")
			break
		}
		slog.Info("Initializing Gemini standardizer...", "model", *geminiModel)
		g, err := standardize.NewGeminiProvider(ctx, key, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer g.Close()
		provider = g
	case "openai":
		key := apiKey(*openaiKey, "OPENAI_API_KEY")
		if key == "" {
			slog.Warn("No OpenAI API key, standardization will use the knowledge base only")
			break
		}
		slog.Info("Initializing OpenAI standardizer...", "model", *openaiModel)
		provider, err = standardize.NewOpenAIProvider(key, *openaiBaseURL, *openaiModel)
		if err != nil {
			slog.Error("Failed to initialize OpenAI", "error", err)
			os.Exit(1)
		}
	case "none":
		slog.Info("Standardization will use the knowledge base only")
	default:
		slog.Error("Invalid standardizer type", "type", *stdType, "valid", "gemini, openai or none")
		os.Exit(1)
	}

	standardizer := standardize.New(provider, resolver.New(kb), c, standardize.Config{
		TTL:           *cacheTTL,
		Timeout:       *aiTimeout,
		RatePerSecond: *aiRate,
	})

	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		key := apiKey(*geminiKey, "GEMINI_API_KEY")
		if key == "" {
			slog.Warn("No Gemini API key, receipt scans will add the default items")
			break
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(ctx, key, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini scanner", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner = scanning.NewOllama(*ollamaURL, *ollamaModel)
	case "none":
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, ollama or none")
		os.Exit(1)
	}
	if scanner != nil {
		defer scanner.Close()
	}

	suggester := recipe.NewSuggester(recipe.NewOllama(*ollamaURL, *recipeModel), recipe.DefaultCount)

	service := pantry.NewService(store, kb, standardizer, scanner, suggester)
	server := pantry.NewServer(service)

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}
