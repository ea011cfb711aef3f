package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// serverExtByLang maps a detected language to the file extension the
// server-based analyzer's project-properties file expects.
var serverExtByLang = map[Language]string{
	LangArkTS:      ".ets",
	LangTypeScript: ".ts",
	LangJavaScript: ".js",
	LangJava:       ".java",
	LangPython:     ".py",
	LangC:          ".c",
	LangCPP:        ".cpp",
	LangVue:        ".vue",
	LangHTML:       ".html",
	LangCSS:        ".css",
}

// ServerAnalyzer is a multi-language analyzer-server back end
// (SonarQube-shaped) driven through a local scanner CLI and polled over
// HTTP for issues and security hotspots.
type ServerAnalyzer struct {
	// BaseURL is the analyzer server's HTTP API root, e.g. "http://localhost:9000".
	BaseURL string
	// ScannerCommand is the local CLI that uploads the temp project, e.g. "sonar-scanner".
	ScannerCommand string
	HTTPClient     *http.Client
	// PollInterval and PollTimeout bound the issues/hotspots poll loop.
	PollInterval time.Duration
	PollTimeout  time.Duration
	// AuthToken, if set, is sent as the server API bearer token.
	AuthToken string
}

func (a *ServerAnalyzer) ID() string { return "server" }

func (a *ServerAnalyzer) IsAvailable(ctx context.Context) bool {
	if strings.TrimSpace(a.BaseURL) == "" {
		return false
	}
	if _, err := exec.LookPath(a.ScannerCommand); err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.BaseURL, "/")+"/api/system/status", nil)
	if err != nil {
		return false
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (a *ServerAnalyzer) SupportsLanguage(lang Language) bool {
	_, ok := serverExtByLang[lang]
	return ok
}

func (a *ServerAnalyzer) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (a *ServerAnalyzer) Review(ctx context.Context, req ReviewRequest) (ReviewResult, error) {
	start := time.Now()
	if !a.SupportsLanguage(req.Language) {
		return NotSupportedResult(req, a.ID()), nil
	}
	if !a.IsAvailable(ctx) {
		return UnavailableResult(req, a.ID(), nil), nil
	}

	pollTimeout := a.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 180 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	projectKey := "candidate-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	dir, err := os.MkdirTemp("", "server-analyzer-*")
	if err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}
	defer os.RemoveAll(dir)
	defer a.deleteProject(context.Background(), projectKey)

	ext := serverExtByLang[req.Language]
	srcPath := filepath.Join(dir, "candidate"+ext)
	if err := os.WriteFile(srcPath, []byte(req.Code), 0o644); err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}
	if err := a.writeProjectProperties(dir, projectKey, "candidate"+ext); err != nil {
		return UnavailableResult(req, a.ID(), err), nil
	}

	cmd := exec.CommandContext(runCtx, a.ScannerCommand,
		"-Dproject.settings="+filepath.Join(dir, "sonar-project.properties"))
	cmd.Dir = dir
	out, runErr := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		res := TimeoutResult(req, a.ID(), pollTimeout)
		res.Elapsed = time.Since(start)
		return res, nil
	}
	if runErr != nil {
		log.Debug().Err(runErr).Str("output", string(out)).Msg("server analyzer scan invocation reported a non-zero exit")
	}

	issues, hotspots, err := a.pollResults(runCtx, projectKey)
	if err != nil {
		res := UnavailableResult(req, a.ID(), err)
		res.Elapsed = time.Since(start)
		return res, nil
	}
	all := append(issues, hotspots...)
	for i := range all {
		all[i].BackendID = a.ID()
	}

	return ReviewResult{
		Request:    req,
		ReportText: string(out),
		Issues:     all,
		Score:      scoreFromServerIssues(all),
		Metadata:   map[string]string{"backend": a.ID(), "project_key": projectKey},
		Elapsed:    time.Since(start),
	}, nil
}

func (a *ServerAnalyzer) writeProjectProperties(dir, projectKey, srcFile string) error {
	props := "" +
		"sonar.projectKey=" + projectKey + "\n" +
		"sonar.sources=" + srcFile + "\n" +
		"sonar.sourceEncoding=UTF-8\n" +
		"sonar.verbose=true\n" +
		"sonar.qualitygate.wait=true\n" +
		"sonar.inclusions=**/*\n"
	return os.WriteFile(filepath.Join(dir, "sonar-project.properties"), []byte(props), 0o644)
}

type serverIssuesResponse struct {
	Issues []struct {
		Severity  string `json:"severity"`
		Type      string `json:"type"`
		Message   string `json:"message"`
		Component string `json:"component"`
		Line      int    `json:"line"`
		Rule      string `json:"rule"`
	} `json:"issues"`
}

type serverHotspotsResponse struct {
	Hotspots []struct {
		VulnerabilityProbability string `json:"vulnerabilityProbability"`
		Message                  string `json:"message"`
		Component                string `json:"component"`
		Line                     int    `json:"line"`
		RuleKey                  string `json:"ruleKey"`
	} `json:"hotspots"`
}

// pollResults polls the issues and hotspots endpoints at a fixed interval
// until both return, or the context deadline elapses (poll
// interval default 3s, overall deadline bounded by PollTimeout).
func (a *ServerAnalyzer) pollResults(ctx context.Context, projectKey string) ([]Issue, []Issue, error) {
	interval := a.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		issues, err := a.fetchIssues(ctx, projectKey)
		if err == nil {
			hotspots, herr := a.fetchHotspots(ctx, projectKey)
			if herr == nil {
				return issues, hotspots, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *ServerAnalyzer) fetchIssues(ctx context.Context, projectKey string) ([]Issue, error) {
	u := strings.TrimRight(a.BaseURL, "/") + "/api/issues/search?componentKeys=" + url.QueryEscape(projectKey)
	var body serverIssuesResponse
	if err := a.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(body.Issues))
	for _, it := range body.Issues {
		out = append(out, Issue{
			Severity: normalizeServerSeverity(it.Severity),
			Message:  it.Message,
			FilePath: it.Component,
			Line:     it.Line,
			RuleID:   it.Rule,
			Category: it.Type,
		})
	}
	return out, nil
}

func (a *ServerAnalyzer) fetchHotspots(ctx context.Context, projectKey string) ([]Issue, error) {
	u := strings.TrimRight(a.BaseURL, "/") + "/api/hotspots/search?projectKey=" + url.QueryEscape(projectKey)
	var body serverHotspotsResponse
	if err := a.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(body.Hotspots))
	for _, h := range body.Hotspots {
		out = append(out, Issue{
			Severity: hotspotSeverity(h.VulnerabilityProbability),
			Message:  h.Message,
			FilePath: h.Component,
			Line:     h.Line,
			RuleID:   h.RuleKey,
			Category: "SECURITY_HOTSPOT",
		})
	}
	return out, nil
}

func (a *ServerAnalyzer) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if a.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.AuthToken)
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analyzer: server returned status %d for %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *ServerAnalyzer) deleteProject(ctx context.Context, projectKey string) {
	u := strings.TrimRight(a.BaseURL, "/") + "/api/projects/delete"
	form := url.Values{"project": {projectKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if a.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.AuthToken)
	}
	resp, err := a.client().Do(req)
	if err != nil {
		log.Debug().Err(err).Str("project", projectKey).Msg("server analyzer project cleanup failed")
		return
	}
	resp.Body.Close()
}

func normalizeServerSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BLOCKER", "CRITICAL":
		return SeverityError
	case "MAJOR", "MINOR":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func hotspotSeverity(prob string) Severity {
	switch strings.ToUpper(strings.TrimSpace(prob)) {
	case "HIGH":
		return SeverityError
	case "MEDIUM":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// scoreDecrement is the published per-issue weight table.
var scoreDecrement = map[string]map[Severity]int{
	"BUG": {
		SeverityError:   20,
		SeverityWarning: 10,
		SeverityInfo:    5,
	},
	"VULNERABILITY": {
		SeverityError:   25,
		SeverityWarning: 15,
		SeverityInfo:    8,
	},
	"CODE_SMELL": {
		SeverityError:   8,
		SeverityWarning: 4,
		SeverityInfo:    2,
	},
	"SECURITY_HOTSPOT": {
		SeverityError:   25,
		SeverityWarning: 15,
		SeverityInfo:    8,
	},
}

func scoreFromServerIssues(issues []Issue) int {
	score := 100
	for _, is := range issues {
		weights, ok := scoreDecrement[strings.ToUpper(is.Category)]
		if !ok {
			weights = scoreDecrement["CODE_SMELL"]
		}
		score -= weights[is.Severity]
	}
	if score < 0 {
		score = 0
	}
	return score
}
