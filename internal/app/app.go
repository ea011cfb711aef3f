// Package app assembles the pipeline: it builds the evidence store, the
// search orchestrator, the unified code checker and the code generation
// agent from configuration and drives the control loop end to end.
package app

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/arkforge/codegen-rag/internal/analyzer"
	"github.com/arkforge/codegen-rag/internal/brief"
	"github.com/arkforge/codegen-rag/internal/cache"
	"github.com/arkforge/codegen-rag/internal/checker"
	"github.com/arkforge/codegen-rag/internal/codegen"
	"github.com/arkforge/codegen-rag/internal/config"
	"github.com/arkforge/codegen-rag/internal/cor"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/loop"
	"github.com/arkforge/codegen-rag/internal/orchestrator"
	"github.com/arkforge/codegen-rag/internal/planner"
	"github.com/arkforge/codegen-rag/internal/report"
	"github.com/arkforge/codegen-rag/internal/router"
	"github.com/arkforge/codegen-rag/internal/synth"
	"github.com/arkforge/codegen-rag/internal/verify"
)

// App wires the pipeline's subsystems together for one process.
type App struct {
	cfg       config.Config
	ai        *openai.Client
	store     evidence.Store
	httpCache *cache.HTTPCache
}

// ErrNoRequirement is returned when the requirement input cannot be read or
// holds no requirement text.
var ErrNoRequirement = fmt.Errorf("no requirement input")

// New builds an App from configuration, performing a best-effort LLM
// connectivity preflight.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	transportCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		transportCfg.BaseURL = cfg.LLMBaseURL
	}
	// Use a high-throughput HTTP client to avoid client-side throttling
	transportCfg.HTTPClient = newHighThroughputHTTPClient(true)
	client := openai.NewClientWithConfig(transportCfg)

	a := &App{cfg: cfg, ai: client}
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			_ = cache.ClearDir(cfg.CacheDir)
		}
		if cfg.CacheMaxAge > 0 {
			_, _ = cache.PurgeCachesByAge(cfg.CacheDir, cfg.CacheMaxAge)
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir}
	}

	if store, err := buildStore(cfg); err != nil {
		log.Warn().Err(err).Msg("evidence store unavailable; local retrieval degraded")
	} else {
		a.store = store
	}

	// Quick connectivity check to the LLM by listing models. Preflight is
	// best-effort: downstream calls surface hard errors.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := client.ListModels(pctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
	} else if len(models.Models) == 0 {
		log.Warn().Msg("LLM returned zero models")
	} else {
		log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	}

	return a, nil
}

func (a *App) Close() {
	// nothing yet
}

// Run reads the requirement, drives the control loop and writes the run
// report artifacts. The loop itself never throws; Run only errors on missing
// input or artifact-write failures.
func (a *App) Run(ctx context.Context) error {
	requirement, err := a.readRequirement()
	if err != nil {
		return err
	}

	orch := a.buildOrchestrator()
	unified := a.buildChecker()
	llmCache := &cache.LLMCache{Dir: a.cfg.CacheDir, StrictPerms: a.cfg.CacheStrictPerms}
	agent := &codegen.Agent{Client: a.ai, Model: a.cfg.LLMModel, Cache: llmCache, Verbose: a.cfg.Verbose}
	filePlanner := &planner.ProjectPlanner{Client: a.ai, Model: a.cfg.LLMModel, Cache: llmCache, Verbose: a.cfg.Verbose}

	if a.cfg.DryRun {
		return a.dryRun(ctx, requirement, filePlanner, orch)
	}

	runner := &loop.Runner{
		Searcher:     orch,
		Planner:      filePlanner,
		Generator:    agent,
		Checker:      unified,
		ProjectRoot:  a.cfg.ProjectRoot,
		SessionKey:   sessionKeyFor(a.cfg.ProjectRoot),
		MaxAttempts:  a.cfg.MaxAttempts,
		InitialIter:  a.cfg.MaxIter,
		ResearchIter: a.cfg.FixMaxIter,
	}

	res := runner.Run(ctx, requirement)
	log.Info().Bool("resolved", res.Resolved).Int("attempts", res.Attempts).Int("files", len(res.Files)).Msg("control loop finished")
	stats := orch.Stats()
	log.Info().Int("queries", stats.TotalQueries).Int("successful", stats.SuccessfulQueries).Dur("avg_elapsed", stats.AverageElapsed).Msg("search statistics")

	return a.writeArtifacts(res)
}

func (a *App) readRequirement() (string, error) {
	path := a.cfg.RequirementPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.cfg.ProjectRoot, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRequirement, err)
	}
	req := brief.Parse(string(b))
	if req.Text == "" {
		return "", ErrNoRequirement
	}
	text := req.Text
	if req.LayoutHint != "" {
		text = "layout: " + req.LayoutHint + "\n" + text
	}
	return text, nil
}

func (a *App) dryRun(ctx context.Context, requirement string, filePlanner *planner.ProjectPlanner, orch *orchestrator.Orchestrator) error {
	res, err := orch.Search(ctx, requirement, "", orchestrator.Mode(a.cfg.DefaultSearchMode), cor.Config{MaxIter: a.cfg.MaxIter, EarlyStopping: a.cfg.EarlyStopping})
	if err != nil {
		log.Warn().Err(err).Msg("reference search failed; planning without references")
	}
	plan, err := filePlanner.Plan(ctx, requirement, res.Items)
	if err != nil {
		plan = planner.FallbackPlan(requirement)
	}
	var sb strings.Builder
	sb.WriteString("# codegen (dry run)\n\nRequirement:\n")
	sb.WriteString(requirement)
	sb.WriteString("\n\nPlanned files:\n")
	for i, fp := range plan.Files {
		sb.WriteString(strconv.Itoa(i+1) + ". " + fp.Path + " (" + string(fp.Kind) + ") — " + fp.Purpose + "\n")
	}
	sb.WriteString("\nReference sources: " + strconv.Itoa(len(res.Items)) + "\n")
	out := a.cfg.ReportPath
	if err := os.WriteFile(out, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write dry-run output: %w", err)
	}
	log.Info().Str("out", out).Msg("wrote dry-run output")
	return nil
}

func (a *App) buildOrchestrator() *orchestrator.Orchestrator {
	collections := a.cfg.Collections
	if len(collections) == 0 && a.cfg.CollectionName != "" {
		collections = []string{a.cfg.CollectionName}
	}
	rt := &router.Router{
		Client:      a.ai,
		Model:       a.cfg.LLMModel,
		Collections: collections,
		Enabled:     a.cfg.RouteCollection,
	}
	embedClient := a.ai
	if a.cfg.EmbedBaseURL != "" && a.cfg.EmbedBaseURL != a.cfg.LLMBaseURL {
		ecfg := openai.DefaultConfig(a.cfg.LLMAPIKey)
		ecfg.BaseURL = a.cfg.EmbedBaseURL
		ecfg.HTTPClient = newHighThroughputHTTPClient(true)
		embedClient = openai.NewClientWithConfig(ecfg)
	}
	engine := &cor.Engine{
		Client:   a.ai,
		Model:    a.cfg.LLMModel,
		Router:   rt,
		Embedder: &openAIEmbedder{client: embedClient, model: a.cfg.EmbedModel},
		Store:    a.store,
	}
	orch := &orchestrator.Orchestrator{
		Client: a.ai,
		Model:  a.cfg.LLMModel,
		CoR:    engine,
		Synth: &synth.Synthesizer{
			Client: a.ai,
			Model:  a.cfg.LLMModel,
			Cache:  &cache.LLMCache{Dir: a.cfg.CacheDir, StrictPerms: a.cfg.CacheStrictPerms},
		},
		MaxHistory: a.cfg.MaxContextLength,
	}
	orch.Verifier = &verify.Verifier{Client: a.ai, Model: a.cfg.LLMModel, Cache: &cache.LLMCache{Dir: a.cfg.CacheDir, StrictPerms: a.cfg.CacheStrictPerms}}
	if scraper := a.buildScraper(); scraper != nil {
		orch.Scraper = scraper
	}
	return orch
}

func (a *App) buildChecker() *checker.Unified {
	backends := map[string]analyzer.Analyzer{}
	serverEnabled := false
	for id, ac := range a.cfg.Analyzers {
		if !ac.Enabled {
			continue
		}
		switch id {
		case "lint":
			backends[id] = &analyzer.LintAnalyzer{Command: ac.Command, Timeout: ac.Timeout}
		case "native":
			backends[id] = &analyzer.NativeAnalyzer{Command: ac.Command, Timeout: ac.Timeout}
		case "server":
			serverEnabled = true
			backends[id] = &analyzer.ServerAnalyzer{
				BaseURL:        ac.Options["hostURL"],
				ScannerCommand: ac.Command,
				AuthToken:      ac.Options["token"],
				PollTimeout:    ac.Timeout,
			}
		default:
			log.Warn().Str("analyzer", id).Msg("unknown analyzer id in configuration; skipping")
		}
	}
	return &checker.Unified{Backends: backends, Dispatch: checker.DefaultDispatch(serverEnabled)}
}

func buildStore(cfg config.Config) (evidence.Store, error) {
	if strings.TrimSpace(cfg.QdrantAddr) == "" {
		return nil, fmt.Errorf("no vector index configured")
	}
	host, port := splitHostPort(cfg.QdrantAddr)
	store, err := evidence.NewQdrantStore(host, port, false)
	if err != nil {
		return nil, err
	}
	store.UseWiderText = cfg.TextWindowSplitter
	return store, nil
}

func splitHostPort(addr string) (string, int) {
	host := addr
	port := 6334
	if u, err := url.Parse(addr); err == nil && u.Host != "" {
		host = u.Host
	}
	if i := strings.LastIndex(host, ":"); i > 0 {
		if n, err := strconv.Atoi(host[i+1:]); err == nil {
			port = n
			host = host[:i]
		}
	}
	return host, port
}

// sessionKeyFor derives a stable per-project session key so repeated runs on
// the same project share search context.
func sessionKeyFor(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return projectRoot
	}
	return abs
}

func (a *App) writeArtifacts(res loop.Result) error {
	meta := report.Meta{
		Model:       a.cfg.LLMModel,
		LLMBaseURL:  a.cfg.LLMBaseURL,
		Attempts:    res.Attempts,
		Resolved:    res.Resolved,
		TokenUsage:  res.TokenUsage,
		GeneratedAt: time.Now().UTC(),
	}
	md := report.RenderMarkdown(res, meta)
	if err := os.WriteFile(a.cfg.ReportPath, []byte(md), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if data, err := report.MarshalManifestJSON(res, meta); err == nil {
		_ = os.WriteFile(report.ManifestSidecarPath(a.cfg.ReportPath), data, 0o644)
	}
	if a.cfg.EnablePDF {
		pdfPath := a.cfg.ReportPDFPath
		if pdfPath == "" {
			pdfPath = strings.TrimSuffix(a.cfg.ReportPath, filepath.Ext(a.cfg.ReportPath)) + ".pdf"
		}
		if err := report.WritePDF(md, pdfPath); err != nil {
			log.Warn().Err(err).Msg("pdf export failed; markdown report was written")
		}
	}
	log.Info().Str("out", a.cfg.ReportPath).Msg("wrote run report")
	return nil
}

// openAIEmbedder adapts the OpenAI-compatible embeddings endpoint to the
// cor.Embedder surface.
type openAIEmbedder struct {
	client *openai.Client
	model  string
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil || strings.TrimSpace(e.model) == "" {
		return nil, fmt.Errorf("embedder not configured")
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}
