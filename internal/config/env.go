package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv populates unset fields of cfg from environment variables. Explicit
// cfg values take precedence over env.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
	setString(&cfg.LLMModel, "LLM_MODEL")
	setString(&cfg.LLMAPIKey, "LLM_API_KEY")
	setString(&cfg.EmbedBaseURL, "EMBED_BASE_URL")
	setString(&cfg.EmbedModel, "EMBED_MODEL")
	setString(&cfg.QdrantAddr, "QDRANT_ADDR")
	setString(&cfg.SearxURL, "SEARX_URL", "SEARXNG_URL")
	setString(&cfg.SearxKey, "SEARX_KEY", "SEARXNG_KEY")
	setString(&cfg.CacheDir, "CACHE_DIR")

	if len(cfg.Collections) == 0 {
		if v := strings.TrimSpace(os.Getenv("COLLECTIONS")); v != "" {
			for _, c := range strings.Split(v, ",") {
				if c = strings.TrimSpace(c); c != "" {
					cfg.Collections = append(cfg.Collections, c)
				}
			}
		}
	}

	setInt := func(dst *int, key string) {
		if *dst != 0 {
			return
		}
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
			*dst = n
		}
	}
	setInt(&cfg.MaxIter, "MAX_ITER")
	setInt(&cfg.FixMaxIter, "FIX_MAX_ITER")
	setInt(&cfg.MaxAttempts, "MAX_ATTEMPTS")
	setInt(&cfg.MaxContextLength, "MAX_CONTEXT_LENGTH")

	if cfg.CacheMaxAge == 0 {
		if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				cfg.CacheMaxAge = d
			}
		}
	}

	setBool := func(dst *bool, envKey string) {
		if *dst {
			return
		}
		switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
		case "1", "true", "yes", "on":
			*dst = true
		}
	}
	setBool(&cfg.DryRun, "DRY_RUN")
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.EarlyStopping, "EARLY_STOPPING")
	setBool(&cfg.RouteCollection, "ROUTE_COLLECTION")
	setBool(&cfg.TextWindowSplitter, "TEXT_WINDOW_SPLITTER")
	setBool(&cfg.EnablePDF, "ENABLE_PDF")
}

// ApplyEnvOverrides forcefully overrides cfg fields with environment variables
// when the corresponding env vars are set. This lets env take precedence over
// values coming from a config file while flags remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	override := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
			}
		}
	}
	override(&cfg.LLMBaseURL, "LLM_BASE_URL")
	override(&cfg.LLMModel, "LLM_MODEL")
	override(&cfg.LLMAPIKey, "LLM_API_KEY")
	override(&cfg.EmbedBaseURL, "EMBED_BASE_URL")
	override(&cfg.EmbedModel, "EMBED_MODEL")
	override(&cfg.QdrantAddr, "QDRANT_ADDR")
	override(&cfg.SearxURL, "SEARX_URL", "SEARXNG_URL")
	override(&cfg.SearxKey, "SEARX_KEY", "SEARXNG_KEY")
	override(&cfg.CacheDir, "CACHE_DIR")

	if s := os.Getenv("CACHE_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.CacheMaxAge = d
		}
	}

	setBool := func(dst *bool, envKey string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.DryRun, "DRY_RUN")
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.EarlyStopping, "EARLY_STOPPING")
	setBool(&cfg.RouteCollection, "ROUTE_COLLECTION")
	setBool(&cfg.TextWindowSplitter, "TEXT_WINDOW_SPLITTER")
	setBool(&cfg.EnablePDF, "ENABLE_PDF")
}
