package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arkforge/codegen-rag/internal/app"
	"github.com/arkforge/codegen-rag/internal/config"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Defaults()
	var (
		configPath  string
		envFile     string
		collections string
	)

	flag.StringVar(&configPath, "config", "", "Path to YAML/JSON config file")
	flag.StringVar(&envFile, "env", ".env", "Path to dotenv file loaded before env overlays")
	flag.StringVar(&cfg.ProjectRoot, "project", "", "Path to the target application project")
	flag.StringVar(&cfg.RequirementPath, "requirement", cfg.RequirementPath, "Requirement input, relative to the project root")
	flag.StringVar(&cfg.LLMBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	flag.StringVar(&cfg.LLMModel, "llm.model", "", "Model name")
	flag.StringVar(&cfg.LLMAPIKey, "llm.key", "", "API key for OpenAI-compatible server")
	flag.StringVar(&cfg.EmbedBaseURL, "embed.base", "", "Embedding endpoint base URL (defaults to llm.base)")
	flag.StringVar(&cfg.EmbedModel, "embed.model", "", "Embedding model name")
	flag.StringVar(&cfg.QdrantAddr, "qdrant.addr", "", "Qdrant address host:port")
	flag.StringVar(&cfg.CollectionName, "collection", cfg.CollectionName, "Default vector collection")
	flag.StringVar(&collections, "collections", "", "Comma-separated vector collections (overrides -collection)")
	flag.BoolVar(&cfg.RouteCollection, "route", false, "Route queries to a collection subset via the LLM")
	flag.StringVar(&cfg.SearxURL, "searx.url", "", "SearxNG base URL")
	flag.StringVar(&cfg.SearxKey, "searx.key", "", "SearxNG API key (optional)")
	flag.StringVar(&cfg.DefaultSearchMode, "search.mode", cfg.DefaultSearchMode, "Default search mode: local_only|online_only|hybrid|chain_of_search|adaptive")
	flag.IntVar(&cfg.MaxContextLength, "search.maxContext", cfg.MaxContextLength, "Per-session history bound")
	flag.IntVar(&cfg.MaxIter, "search.maxIter", cfg.MaxIter, "Chain-of-retrieval iteration cap")
	flag.IntVar(&cfg.FixMaxIter, "search.fixMaxIter", cfg.FixMaxIter, "Iteration cap for fix-round research")
	flag.BoolVar(&cfg.EarlyStopping, "search.earlyStop", false, "Enable chain-of-retrieval early stopping")
	flag.BoolVar(&cfg.TextWindowSplitter, "search.widerText", false, "Prefer windowed wider_text payloads when present")
	flag.IntVar(&cfg.MaxAttempts, "loop.maxAttempts", cfg.MaxAttempts, "Control loop attempt budget")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "Plan files and report without generating code")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	flag.StringVar(&cfg.CacheDir, "cache.dir", cfg.CacheDir, "Cache directory path")
	flag.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", 0, "Max age for cache entries before purge (e.g. 24h); 0 disables")
	flag.BoolVar(&cfg.CacheClear, "cache.clear", false, "Clear cache directory before run")
	flag.BoolVar(&cfg.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "Path to write the run report")
	flag.BoolVar(&cfg.EnablePDF, "report.pdf", false, "Also export the run report as PDF")
	flag.Parse()

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("version", app.VersionString()).Msg("codegen starting")

	if err := app.LoadEnvFiles(envFile); err != nil {
		log.Warn().Err(err).Msg("dotenv load failed; continuing")
	}
	if collections != "" {
		cfg.Collections = splitCSV(collections)
	}
	config.ApplyEnv(&cfg)
	if configPath != "" {
		fc, err := config.LoadFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("config file unreadable")
			os.Exit(1)
		}
		config.ApplyFile(&cfg, fc)
	}
	if cfg.EmbedBaseURL == "" {
		cfg.EmbedBaseURL = cfg.LLMBaseURL
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		// Exit code policy: missing requirement input is a hard usage error;
		// an unresolved generation run still produces a report and exits 0.
		if errors.Is(err, app.ErrNoRequirement) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx := context.Background()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
