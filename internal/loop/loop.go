// Package loop implements the Control Loop: the trampolined
// PLAN -> GENERATE -> CHECK -> FILTER -> (DONE | ANALYZE -> RESEARCH -> fix)
// state machine over an explicit LoopState, so attempt budgets, timeouts and
// cancellation are all visible at a single point.
package loop

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arkforge/codegen-rag/internal/analyzer"
	"github.com/arkforge/codegen-rag/internal/codegen"
	"github.com/arkforge/codegen-rag/internal/cor"
	"github.com/arkforge/codegen-rag/internal/errfilter"
	"github.com/arkforge/codegen-rag/internal/evidence"
	"github.com/arkforge/codegen-rag/internal/orchestrator"
)

// State names one node of the control loop's state machine.
type State string

const (
	StatePlan     State = "PLAN"
	StateGenerate State = "GENERATE"
	StateCheck    State = "CHECK"
	StateFilter   State = "FILTER"
	StateAnalyze  State = "ANALYZE"
	StateResearch State = "RESEARCH"
	StateDone     State = "DONE"
)

// Searcher is the search-orchestrator surface the loop consumes. A non-nil
// error marks an LLM failure that is fatal to the calling step; degraded
// retrieval comes back as an empty or placeholder result with a nil error.
type Searcher interface {
	Search(ctx context.Context, query, sessionKey string, mode orchestrator.Mode, corCfg cor.Config) (orchestrator.SearchResult, error)
}

// Planner derives a ProjectPlan from the requirement and reference material.
type Planner interface {
	Plan(ctx context.Context, requirement string, refs []evidence.Item) (codegen.ProjectPlan, error)
}

// Generator is the code-generation surface the loop consumes.
type Generator interface {
	GenerateFile(ctx context.Context, requirement string, plan codegen.FilePlan, refs []evidence.Item) (string, error)
	FixFile(ctx context.Context, requirement, current string, errs codegen.FileErrors, refs []evidence.Item) (string, error)
}

// Checker is the unified-checker surface the loop consumes.
type Checker interface {
	Review(ctx context.Context, req analyzer.ReviewRequest) analyzer.ReviewResult
}

// Writer persists a generated file. The default is codegen.WriteFile's
// three-tier strategy; tests substitute an in-memory recorder.
type Writer func(path string, content []byte) error

// LoopState is the explicit state record the trampoline advances.
type LoopState struct {
	Requirement string
	Attempt     int
	MaxAttempts int
	LastIssues  []analyzer.Issue
	LastCode    map[string]string
	SessionKey  string
}

// Terminal reports whether the state machine may stop: no error-severity
// issues remain, or the attempt budget is exhausted.
func (s *LoopState) Terminal() bool {
	return !hasErrors(s.LastIssues) || s.Attempt >= s.MaxAttempts
}

// Result is the structured record every Run returns; the loop never throws
//. On an unresolved exit it carries the last code snapshot, the
// last issue list, the attempt count and the last diagnostic.
type Result struct {
	Requirement string
	Resolved    bool
	Attempts    int
	Plan        codegen.ProjectPlan
	Files       map[string]string
	Issues      []analyzer.Issue
	// Analysis summarizes the last classified error round: auto-fixable
	// share, type/severity distributions and a fix recommendation.
	Analysis   errfilter.Summary
	Diagnostic string
	Elapsed    time.Duration
	TokenUsage int
}

// Runner wires the collaborating subsystems into the control loop.
type Runner struct {
	Searcher  Searcher
	Planner   Planner
	Generator Generator
	Checker   Checker
	Write     Writer

	// ProjectRoot is prepended to project-relative paths when writing.
	ProjectRoot string
	SessionKey  string
	// MaxAttempts bounds the run's attempt counter, which every failed step
	// and every fix round advances; zero means the default of 4.
	MaxAttempts int
	// ResearchIter is the CoR iteration cap inherited by RESEARCH calls;
	// zero means the fix-mode default of 2.
	ResearchIter int
	// InitialIter is the CoR iteration cap for the first reference search;
	// zero means the default of 4.
	InitialIter int
}

// Run drives the state machine to completion. It always returns a Result and
// never an error; non-recoverable step failures are recorded, charged against
// the attempt budget and retried or surfaced in the final record.
func (r *Runner) Run(ctx context.Context, requirement string) Result {
	start := time.Now()
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}

	st := &LoopState{
		Requirement: requirement,
		MaxAttempts: maxAttempts,
		LastCode:    map[string]string{},
		SessionKey:  r.SessionKey,
	}

	var (
		plan       codegen.ProjectPlan
		refs       []evidence.Item
		fixErrs    []codegen.FileErrors
		fixRefs    map[string][]evidence.Item
		analysis   errfilter.Summary
		rawReport  string
		diagnostic string
		tokens     int
		fixing     bool
	)

	state := StatePlan
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			diagnostic = "cancelled: " + err.Error()
			break
		}
		log.Info().Str("state", string(state)).Int("attempt", st.Attempt).Int("errors_remaining", countErrors(st.LastIssues)).Msg("control loop transition")

		switch state {
		case StatePlan:
			res, err := r.search(ctx, requirement, orchestrator.ModeAdaptive, r.initialIter())
			tokens += res.TokenUsage
			if err != nil {
				st.Attempt++
				diagnostic = "reference search failed: " + err.Error()
				if st.Attempt >= st.MaxAttempts {
					state = StateDone
				}
				continue
			}
			refs = res.Items

			p, err := r.Planner.Plan(ctx, requirement, refs)
			if err != nil {
				st.Attempt++
				diagnostic = "plan failed: " + err.Error()
				if st.Attempt >= st.MaxAttempts {
					state = StateDone
					continue
				}
				continue
			}
			plan = p
			state = StateGenerate

		case StateGenerate:
			var err error
			if fixing {
				err = r.fixFiles(ctx, st, fixErrs, fixRefs)
			} else {
				err = r.generateFiles(ctx, st, plan, refs)
			}
			if err != nil {
				st.Attempt++
				diagnostic = "generation failed: " + err.Error()
				if st.Attempt >= st.MaxAttempts {
					state = StateDone
					continue
				}
				state = StatePlan
				continue
			}
			state = StateCheck

		case StateCheck:
			st.LastIssues, rawReport = r.check(ctx, st.LastCode)
			state = StateFilter

		case StateFilter:
			st.LastIssues = errfilter.Filter(st.LastIssues, rawReport)
			if !hasErrors(st.LastIssues) {
				diagnostic = ""
				state = StateDone
				continue
			}
			if st.Attempt >= st.MaxAttempts-1 {
				st.Attempt++
				diagnostic = fmt.Sprintf("%d unresolved errors after %d attempts", countErrors(st.LastIssues), st.Attempt)
				state = StateDone
				continue
			}
			state = StateAnalyze

		case StateAnalyze:
			fixErrs, analysis = r.analyze(st.LastIssues)
			log.Info().Int("errors", analysis.TotalErrors).Int("auto_fixable", analysis.AutoFixable).Strs("types", analysis.TypeCounts()).Str("recommendation", analysis.Recommendation).Msg("error analysis")
			state = StateResearch

		case StateResearch:
			fixRefs = map[string][]evidence.Item{}
			var searchErr error
			for _, fe := range fixErrs {
				query := researchQuery(fe)
				res, err := r.search(ctx, query, orchestrator.ModeChain, r.researchIter())
				tokens += res.TokenUsage
				if err != nil {
					searchErr = err
					break
				}
				fixRefs[fe.Path] = res.Items
			}
			if searchErr != nil {
				// An LLM failure during research aborts this fix attempt.
				st.Attempt++
				diagnostic = "research failed: " + searchErr.Error()
				if st.Attempt >= st.MaxAttempts {
					state = StateDone
				}
				continue
			}
			fixing = true
			st.Attempt++
			state = StateGenerate
		}
	}

	resolved := !hasErrors(st.LastIssues) && diagnostic == ""
	return Result{
		Requirement: requirement,
		Resolved:    resolved,
		Attempts:    st.Attempt,
		Plan:        plan,
		Files:       st.LastCode,
		Issues:      st.LastIssues,
		Analysis:    analysis,
		Diagnostic:  diagnostic,
		Elapsed:     time.Since(start),
		TokenUsage:  tokens,
	}
}

func (r *Runner) initialIter() int {
	if r.InitialIter > 0 {
		return r.InitialIter
	}
	return 4
}

func (r *Runner) researchIter() int {
	if r.ResearchIter > 0 {
		return r.ResearchIter
	}
	return 2
}

func (r *Runner) search(ctx context.Context, query string, mode orchestrator.Mode, maxIter int) (orchestrator.SearchResult, error) {
	if r.Searcher == nil {
		return orchestrator.SearchResult{Query: query, ModeUsed: mode}, nil
	}
	return r.Searcher.Search(ctx, query, r.SessionKey, mode, cor.Config{MaxIter: maxIter})
}

func (r *Runner) generateFiles(ctx context.Context, st *LoopState, plan codegen.ProjectPlan, refs []evidence.Item) error {
	for _, fp := range plan.Files {
		content, err := r.Generator.GenerateFile(ctx, st.Requirement, fp, refs)
		if err != nil {
			return fmt.Errorf("generate %s: %w", fp.Path, err)
		}
		if err := r.writeFile(fp.Path, content); err != nil {
			return fmt.Errorf("write %s: %w", fp.Path, err)
		}
		st.LastCode[fp.Path] = content
	}
	return nil
}

func (r *Runner) fixFiles(ctx context.Context, st *LoopState, fixErrs []codegen.FileErrors, fixRefs map[string][]evidence.Item) error {
	for _, fe := range fixErrs {
		current := st.LastCode[fe.Path]
		content, err := r.Generator.FixFile(ctx, st.Requirement, current, fe, fixRefs[fe.Path])
		if err != nil {
			return fmt.Errorf("fix %s: %w", fe.Path, err)
		}
		if err := r.writeFile(fe.Path, content); err != nil {
			return fmt.Errorf("write %s: %w", fe.Path, err)
		}
		st.LastCode[fe.Path] = content
	}
	return nil
}

func (r *Runner) writeFile(path, content string) error {
	write := r.Write
	if write == nil {
		write = codegen.WriteFile
	}
	target := path
	if r.ProjectRoot != "" {
		target = filepath.Join(r.ProjectRoot, path)
	}
	return write(target, []byte(content))
}

// check reviews every generated file and concatenates the back ends' raw
// reports so FILTER can look for authoritative summary lines.
func (r *Runner) check(ctx context.Context, files map[string]string) ([]analyzer.Issue, string) {
	if r.Checker == nil {
		return nil, ""
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var issues []analyzer.Issue
	var reports strings.Builder
	for _, p := range paths {
		res := r.Checker.Review(ctx, analyzer.ReviewRequest{Code: files[p], Metadata: map[string]string{"path": p}})
		for _, is := range res.Issues {
			if is.FilePath == "" {
				is.FilePath = p
			}
			issues = append(issues, is)
		}
		reports.WriteString(res.ReportText)
		reports.WriteString("\n")
	}
	return issues, reports.String()
}

// analyze classifies surviving issues, groups them by inferred target file
// and orders the fix plan by each file's highest error priority so the most
// blocking file is repaired first. The returned Summary aggregates the round
// for logging and the run report.
func (r *Runner) analyze(issues []analyzer.Issue) ([]codegen.FileErrors, errfilter.Summary) {
	byFile := map[string][]errfilter.ErrorAnalysis{}
	var all []errfilter.ErrorAnalysis
	for i, is := range issues {
		ea := errfilter.Classify(is, fmt.Sprintf("e%d", i+1))
		byFile[ea.TargetFile] = append(byFile[ea.TargetFile], ea)
		all = append(all, ea)
	}

	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]codegen.FileErrors, 0, len(byFile))
	for _, p := range paths {
		analyses := byFile[p]
		sort.SliceStable(analyses, func(a, b int) bool {
			return analyses[a].PriorityScore > analyses[b].PriorityScore
		})
		out = append(out, codegen.FileErrors{Path: p, Analyses: analyses})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Analyses[0].PriorityScore > out[b].Analyses[0].PriorityScore
	})
	return out, errfilter.Summarize(all)
}

// researchQuery focuses a RESEARCH call on a file's highest-priority error
// and its search keywords.
func researchQuery(fe codegen.FileErrors) string {
	if len(fe.Analyses) == 0 {
		return "how to fix build errors in " + fe.Path
	}
	top := fe.Analyses[0]
	q := "how to fix " + string(top.Type) + " error: " + top.RootCause
	if len(top.SearchKeywords) > 0 {
		q += " " + strings.Join(top.SearchKeywords, " ")
	}
	return q
}

func hasErrors(issues []analyzer.Issue) bool {
	return countErrors(issues) > 0
}

func countErrors(issues []analyzer.Issue) int {
	n := 0
	for _, is := range issues {
		if is.Severity == analyzer.SeverityError {
			n++
		}
	}
	return n
}
