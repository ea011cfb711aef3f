package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arkforge/codegen-rag/internal/config"
	"github.com/arkforge/codegen-rag/internal/loop"
)

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
	}{
		{"localhost:6334", "localhost", 6334},
		{"qdrant", "qdrant", 6334},
		{"http://qdrant:6334", "qdrant", 6334},
		{"10.0.0.5:7000", "10.0.0.5", 7000},
	}
	for _, tc := range cases {
		host, port := splitHostPort(tc.in)
		if host != tc.host || port != tc.port {
			t.Fatalf("splitHostPort(%q) = %q,%d want %q,%d", tc.in, host, port, tc.host, tc.port)
		}
	}
}

func TestReadRequirementParsesLayoutHint(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Notes\nlayout: list\nA notes app."), 0o644); err != nil {
		t.Fatal(err)
	}
	a := &App{cfg: config.Config{ProjectRoot: dir, RequirementPath: "README.md"}}
	req, err := a.readRequirement()
	if err != nil {
		t.Fatalf("readRequirement: %v", err)
	}
	if !strings.HasPrefix(req, "layout: list") {
		t.Fatalf("layout hint not prepended: %q", req)
	}
	if !strings.Contains(req, "notes app") {
		t.Fatalf("body missing: %q", req)
	}
}

func TestReadRequirementMissingFile(t *testing.T) {
	a := &App{cfg: config.Config{ProjectRoot: t.TempDir(), RequirementPath: "README.md"}}
	if _, err := a.readRequirement(); err == nil {
		t.Fatal("expected error for missing requirement")
	}
}

func TestBuildCheckerWiresConfiguredBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Analyzers = map[string]config.AnalyzerConfig{
		"lint":   {Enabled: true, Command: "ark-lint"},
		"native": {Enabled: false, Command: "cppcheck"},
		"server": {Enabled: true, Options: map[string]string{"hostURL": "http://localhost:9000"}},
		"weird":  {Enabled: true},
	}
	a := &App{cfg: cfg}
	u := a.buildChecker()
	if _, ok := u.Backends["lint"]; !ok {
		t.Fatal("lint back end missing")
	}
	if _, ok := u.Backends["native"]; ok {
		t.Fatal("disabled back end should not be wired")
	}
	if _, ok := u.Backends["server"]; !ok {
		t.Fatal("server back end missing")
	}
	if _, ok := u.Backends["weird"]; ok {
		t.Fatal("unknown analyzer id should be skipped")
	}
	// server enabled extends the dispatch table beyond the lint/native set
	if len(u.Dispatch["python"]) == 0 {
		t.Fatal("server-enabled dispatch should cover python")
	}
}

func TestWriteArtifactsEmitsReportAndSidecar(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ReportPath = filepath.Join(dir, "report.md")
	a := &App{cfg: cfg}
	res := loop.Result{Requirement: "todo app", Resolved: true, Files: map[string]string{"entry/src/main/ets/pages/Index.ets": "@Entry struct Index {}"}}
	if err := a.writeArtifacts(res); err != nil {
		t.Fatalf("writeArtifacts: %v", err)
	}
	if _, err := os.Stat(cfg.ReportPath); err != nil {
		t.Fatalf("report missing: %v", err)
	}
	if _, err := os.Stat(cfg.ReportPath + ".manifest.json"); err != nil {
		t.Fatalf("manifest sidecar missing: %v", err)
	}
}
