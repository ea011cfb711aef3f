package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema. Nested sections
// improve readability and map naturally to flags/env.
type FileConfig struct {
	Project     string `yaml:"project" json:"project"`
	Requirement string `yaml:"requirement" json:"requirement"`

	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Embedding struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
	} `yaml:"embedding" json:"embedding"`

	Vector struct {
		Addr            string   `yaml:"addr" json:"addr"`
		Collection      string   `yaml:"collection" json:"collection"`
		Collections     []string `yaml:"collections" json:"collections"`
		RouteCollection bool     `yaml:"routeCollection" json:"routeCollection"`
	} `yaml:"vector" json:"vector"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
		UA  string `yaml:"ua" json:"ua"`
	} `yaml:"searx" json:"searx"`

	Search struct {
		DefaultMode        string `yaml:"defaultMode" json:"defaultMode"`
		MaxContextLength   int    `yaml:"maxContextLength" json:"maxContextLength"`
		MaxIter            int    `yaml:"maxIter" json:"maxIter"`
		FixMaxIter         int    `yaml:"fixMaxIter" json:"fixMaxIter"`
		EarlyStopping      bool   `yaml:"earlyStopping" json:"earlyStopping"`
		TextWindowSplitter bool   `yaml:"textWindowSplitter" json:"textWindowSplitter"`
	} `yaml:"search" json:"search"`

	Loop struct {
		MaxAttempts int `yaml:"maxAttempts" json:"maxAttempts"`
	} `yaml:"loop" json:"loop"`

	Analyzers map[string]struct {
		Enabled bool   `yaml:"enabled" json:"enabled"`
		Command string `yaml:"command" json:"command"`
		// Timeout is a Go duration string, e.g. "45s".
		Timeout string            `yaml:"timeout" json:"timeout"`
		Options map[string]string `yaml:"options" json:"options"`
	} `yaml:"analyzers" json:"analyzers"`

	Cache struct {
		Dir string `yaml:"dir" json:"dir"`
		// MaxAge is a Go duration string, e.g. "24h".
		MaxAge      string `yaml:"maxAge" json:"maxAge"`
		Clear       bool   `yaml:"clear" json:"clear"`
		StrictPerms bool   `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Report struct {
		Path      string `yaml:"path" json:"path"`
		PDFPath   string `yaml:"pdfPath" json:"pdfPath"`
		EnablePDF bool   `yaml:"enablePDF" json:"enablePDF"`
	} `yaml:"report" json:"report"`

	DryRun  bool `yaml:"dryRun" json:"dryRun"`
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadFile reads YAML or JSON into FileConfig.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFile overlays values from FileConfig into cfg for fields still at
// their zero value or flag default. Flags should already have been parsed;
// this lets file config supply defaults while preserving explicit flags.
func ApplyFile(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	def := Defaults()

	overlay := func(dst *string, defVal, fileVal string) {
		if (*dst == "" || *dst == defVal) && fileVal != "" {
			*dst = fileVal
		}
	}
	overlay(&cfg.ProjectRoot, "", fc.Project)
	overlay(&cfg.RequirementPath, def.RequirementPath, fc.Requirement)
	overlay(&cfg.LLMBaseURL, "", fc.LLM.BaseURL)
	overlay(&cfg.LLMModel, "", fc.LLM.Model)
	overlay(&cfg.LLMAPIKey, "", fc.LLM.APIKey)
	overlay(&cfg.EmbedBaseURL, "", fc.Embedding.BaseURL)
	overlay(&cfg.EmbedModel, "", fc.Embedding.Model)
	overlay(&cfg.QdrantAddr, "", fc.Vector.Addr)
	overlay(&cfg.CollectionName, def.CollectionName, fc.Vector.Collection)
	overlay(&cfg.SearxURL, "", fc.Searx.URL)
	overlay(&cfg.SearxKey, "", fc.Searx.Key)
	overlay(&cfg.SearxUA, def.SearxUA, fc.Searx.UA)
	overlay(&cfg.DefaultSearchMode, def.DefaultSearchMode, fc.Search.DefaultMode)
	overlay(&cfg.CacheDir, def.CacheDir, fc.Cache.Dir)
	overlay(&cfg.ReportPath, def.ReportPath, fc.Report.Path)
	overlay(&cfg.ReportPDFPath, "", fc.Report.PDFPath)

	if len(cfg.Collections) == 0 && len(fc.Vector.Collections) > 0 {
		cfg.Collections = append([]string{}, fc.Vector.Collections...)
	}
	if !cfg.RouteCollection && fc.Vector.RouteCollection {
		cfg.RouteCollection = true
	}

	overlayInt := func(dst *int, defVal, fileVal int) {
		if (*dst == 0 || *dst == defVal) && fileVal > 0 {
			*dst = fileVal
		}
	}
	overlayInt(&cfg.MaxContextLength, def.MaxContextLength, fc.Search.MaxContextLength)
	overlayInt(&cfg.MaxIter, def.MaxIter, fc.Search.MaxIter)
	overlayInt(&cfg.FixMaxIter, def.FixMaxIter, fc.Search.FixMaxIter)
	overlayInt(&cfg.MaxAttempts, def.MaxAttempts, fc.Loop.MaxAttempts)

	if !cfg.EarlyStopping && fc.Search.EarlyStopping {
		cfg.EarlyStopping = true
	}
	if !cfg.TextWindowSplitter && fc.Search.TextWindowSplitter {
		cfg.TextWindowSplitter = true
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge != "" {
		if d, err := time.ParseDuration(fc.Cache.MaxAge); err == nil {
			cfg.CacheMaxAge = d
		}
	}
	if !cfg.CacheClear && fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if !cfg.CacheStrictPerms && fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}
	if !cfg.EnablePDF && fc.Report.EnablePDF {
		cfg.EnablePDF = true
	}
	if !cfg.DryRun && fc.DryRun {
		cfg.DryRun = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}

	if len(fc.Analyzers) > 0 {
		if cfg.Analyzers == nil {
			cfg.Analyzers = map[string]AnalyzerConfig{}
		}
		for id, a := range fc.Analyzers {
			if _, exists := cfg.Analyzers[id]; exists {
				continue
			}
			opts := map[string]string{}
			for k, v := range a.Options {
				opts[k] = v
			}
			var timeout time.Duration
			if a.Timeout != "" {
				if d, err := time.ParseDuration(a.Timeout); err == nil {
					timeout = d
				}
			}
			cfg.Analyzers[id] = AnalyzerConfig{Enabled: a.Enabled, Command: a.Command, Timeout: timeout, Options: opts}
		}
	}
}
