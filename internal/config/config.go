// Package config holds runtime configuration for the pipeline: flag values,
// environment overlays and an optional YAML/JSON config file, layered in
// that order of precedence (flags over env over file).
package config

import (
	"errors"
	"strings"
	"time"
)

// AnalyzerConfig is one per-analyzer block: whether the back end is
// enabled, its invocation timeout and tool-specific options.
type AnalyzerConfig struct {
	Enabled bool
	Command string
	Timeout time.Duration
	// Options carries tool-specific settings: rule-set toggles, credentials,
	// host URL for the server-based analyzer.
	Options map[string]string
}

// Config holds runtime configuration for the application.
type Config struct {
	// Project under generation.
	ProjectRoot string
	// RequirementPath is the requirement input, canonically <project>/README.md.
	RequirementPath string

	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string

	// Embedding model used to vectorize queries for the evidence store.
	EmbedBaseURL string
	EmbedModel   string

	// Vector index
	QdrantAddr     string
	CollectionName string
	Collections    []string
	RouteCollection bool

	// Online search / scraping
	SearxURL string
	SearxKey string
	SearxUA  string

	// Search behavior
	DefaultSearchMode  string
	MaxContextLength   int
	MaxIter            int
	FixMaxIter         int
	EarlyStopping      bool
	TextWindowSplitter bool

	// Control loop
	MaxAttempts int

	// Analyzers, keyed by back-end id ("lint", "native", "server").
	Analyzers map[string]AnalyzerConfig

	// Behavior
	DryRun           bool
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	Verbose          bool

	// Report artifacts
	ReportPath    string
	ReportPDFPath string
	EnablePDF     bool
}

// Defaults returns the configuration baseline the flag layer starts from.
func Defaults() Config {
	return Config{
		RequirementPath:   "README.md",
		CollectionName:    "harmonyos_docs",
		DefaultSearchMode: "adaptive",
		MaxContextLength:  10,
		MaxIter:           4,
		FixMaxIter:        2,
		MaxAttempts:       4,
		CacheDir:          ".codegen-cache",
		SearxUA:           "codegen-rag/1.0 (+https://github.com/arkforge/codegen-rag)",
		ReportPath:        "run-report.md",
		Analyzers:         map[string]AnalyzerConfig{},
	}
}

// Validate performs minimal schema validation for required settings. For
// dry-run, LLM settings may be omitted.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ProjectRoot) == "" {
		return errors.New("config: project root is required")
	}
	if !cfg.DryRun && strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llm.model is required (or set LLM_MODEL)")
	}
	if cfg.MaxIter < 0 || cfg.FixMaxIter < 0 || cfg.MaxAttempts < 0 || cfg.MaxContextLength < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	switch cfg.DefaultSearchMode {
	case "", "local_only", "online_only", "hybrid", "chain_of_search", "adaptive":
	default:
		return errors.New("config: unknown default search mode " + cfg.DefaultSearchMode)
	}
	for id, a := range cfg.Analyzers {
		if a.Timeout < 0 {
			return errors.New("config: analyzer " + id + ": negative timeout")
		}
	}
	return nil
}
