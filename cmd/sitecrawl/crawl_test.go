package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/database"
)

// testSite serves a small site. The root page is also served at
// /index.html, /about links to a missing page, and the about text changes
// with the revision counter.
type testSite struct {
	*httptest.Server
	revision atomic.Int32
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	site := &testSite{}
	site.revision.Store(1)

	home := `<html><head><title>Home</title><link rel="stylesheet" href="/style.css"></head>
<body><a href="/about">About</a><a href="/index.html">Home</a>
<a href="http://other.example/">Other</a><img src="/logo.png"></body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, home)
	})
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, home)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><p>revision %d</p><a href="/">Home</a><a href="/missing">Gone</a></body></html>`,
			site.revision.Load())
	})

	site.Server = httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

// writeEmptyConfig creates a config file without site settings so tests do
// not pick up a user's .sitecrawl.
func writeEmptyConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("defaults: {}\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// TestNewCrawlCmd tests the crawl command flags.
func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"concurrency", "n", "8"},
		{"timeout", "t", "30s"},
		{"max-pages", "p", "0"},
		{"proxy", "", ""},
		{"config", "c", ""},
		{"json", "j", "false"},
		{"markdown", "m", "false"},
		{"output-file", "o", ""},
		{"external", "", "false"},
		{"save", "s", "false"},
		{"log-json", "", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestBuildConfig tests flag parsing into a Config.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("reads flags and site file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "sites.yaml")
		content := "sites:\n  example.com:\n    cookie: \"a=b\"\n    concurrency: 2\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-n", "3", "-p", "10", "--json", "-c", path, "--external"}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Root != "example.com" || cfg.Concurrency != 3 || cfg.MaxPages != 10 {
			t.Errorf("unexpected config %+v", cfg)
		}
		if !cfg.JSONReport || !cfg.ShowExternalLinks {
			t.Error("expected --json and --external to be set")
		}
		if site := cfg.Site("example.com"); site.Cookie != "a=b" || site.Concurrency != 2 {
			t.Errorf("unexpected site config %+v", site)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected validation error: %v", err)
		}
	})

	t.Run("explicit missing config file is an error", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		if _, err := buildConfig(cmd, []string{"example.com"}); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestSiteConfigFor tests host lookup with and without a port.
func TestSiteConfigFor(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.SiteConfigs = &config.File{
		Sites: map[string]config.SiteConfig{
			"example.com":      {Cookie: "bare"},
			"example.com:8080": {Cookie: "port"},
		},
	}

	if got := siteConfigFor(cfg, "example.com:8080", "example.com").Cookie; got != "port" {
		t.Errorf("host:port lookup = %q, want port", got)
	}
	if got := siteConfigFor(cfg, "example.com:9090", "example.com").Cookie; got != "bare" {
		t.Errorf("hostname fallback = %q, want bare", got)
	}
}

// TestCrawlCommand tests crawling a live test server end to end.
func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	cfgPath := writeEmptyConfig(t)

	t.Run("prints the text sitemap", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "crawl", site.URL, "-c", cfgPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "Page: {/, /index.html}\n" +
			"    Links: [/about, /index.html]\n" +
			"    Static Assets: [" + site.URL + "/logo.png, " + site.URL + "/style.css]\n" +
			"\n" +
			"Page: {/about}\n" +
			"    Links: [/, /missing]\n" +
			"    Static Assets: []\n" +
			"\n"
		if stdout != want {
			t.Errorf("sitemap mismatch\ngot:\n%s\nwant:\n%s", stdout, want)
		}
	})

	t.Run("verbose output lists failures", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "-v", "--log-json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Failed Links:\n  /missing: ") {
			t.Errorf("expected failed link in verbose output, got:\n%s", stdout)
		}
	})

	t.Run("writes JSON to a file", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "reports", "sitemap.json")
		stdout, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "--json", "-o", out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout != "" {
			t.Errorf("expected nothing on stdout, got %q", stdout)
		}

		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		var decoded struct {
			Summary struct {
				Pages       int `json:"pages"`
				UniquePages int `json:"unique_pages"`
				Failed      int `json:"failed"`
			} `json:"summary"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Summary.Pages != 3 || decoded.Summary.UniquePages != 2 || decoded.Summary.Failed != 1 {
			t.Errorf("unexpected summary %+v", decoded.Summary)
		}
	})

	t.Run("verbose file output echoes the sitemap", func(t *testing.T) {
		t.Parallel()

		out := filepath.Join(t.TempDir(), "sitemap.md")
		stdout, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "--markdown", "-v", "-o", out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Page: {/, /index.html}") {
			t.Errorf("expected text sitemap on stdout, got:\n%s", stdout)
		}

		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		if !strings.Contains(string(data), "# Sitemap") {
			t.Errorf("expected markdown in file, got:\n%s", data)
		}
	})

	t.Run("writes Markdown", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "--markdown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "# Sitemap") || !strings.Contains(stdout, "**Title:** Home") {
			t.Errorf("unexpected markdown:\n%s", stdout)
		}
	})

	t.Run("rejects conflicting formats", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "--json", "--markdown")
		if !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("requires a domain root", func(t *testing.T) {
		t.Parallel()

		if _, _, err := execute(t, "crawl"); err == nil {
			t.Error("expected error without arguments")
		}
	})
}

// TestRunCrawlCancelled tests that an interrupted crawl still writes output.
func TestRunCrawlCancelled(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)

	cfg := config.NewConfig()
	cfg.Root = site.URL
	cfg.Verbose = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	logger := setupLogger(io.Discard, false, false)
	if err := runCrawl(ctx, cfg, logger, &stdout, &stderr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(stderr.String(), "Crawl interrupted") {
		t.Errorf("expected interruption notice, got %q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "State:          cancelled") {
		t.Errorf("expected cancelled state, got:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Pending Links:\n  /\n") {
		t.Errorf("expected the seed to stay pending, got:\n%s", stdout.String())
	}
}

// TestHistoryAndCompare tests saving runs and reading them back.
func TestHistoryAndCompare(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	cfgPath := writeEmptyConfig(t)
	dbDir := t.TempDir()

	t.Run("history without archive", func(t *testing.T) {
		_, _, err := execute(t, "history", "--db-dir", filepath.Join(t.TempDir(), "none"))
		if !errors.Is(err, errNoRuns) {
			t.Errorf("expected errNoRuns, got %v", err)
		}
	})

	if _, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "--save", "--db-dir", dbDir); err != nil {
		t.Fatalf("first crawl failed: %v", err)
	}

	t.Run("compare needs two runs", func(t *testing.T) {
		_, _, err := execute(t, "compare", site.URL, "--db-dir", dbDir)
		if err == nil || !strings.Contains(err.Error(), "at least 2") {
			t.Errorf("expected 'at least 2' error, got %v", err)
		}
	})

	site.revision.Store(2)
	if _, _, err := execute(t, "crawl", site.URL, "-c", cfgPath, "--save", "--db-dir", dbDir); err != nil {
		t.Fatalf("second crawl failed: %v", err)
	}

	t.Run("history lists runs", func(t *testing.T) {
		stdout, _, err := execute(t, "history", site.URL, "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(stdout, site.URL+"/") != 2 {
			t.Errorf("expected two runs, got:\n%s", stdout)
		}
		if !strings.Contains(stdout, "3 (2)") {
			t.Errorf("expected page counts, got:\n%s", stdout)
		}
	})

	t.Run("history lists roots", func(t *testing.T) {
		stdout, _, err := execute(t, "history", "--roots", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Crawled roots (1)") {
			t.Errorf("unexpected output:\n%s", stdout)
		}
	})

	t.Run("history shows a stored sitemap", func(t *testing.T) {
		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		runs, err := db.ListRuns(context.Background(), "", 1)
		db.Close()
		if err != nil || len(runs) != 1 {
			t.Fatalf("failed to list runs: %v", err)
		}
		if runs[0].State != crawler.Completed {
			t.Errorf("expected completed run, got %s", runs[0].State)
		}

		stdout, _, err := execute(t, "history", "--show", runs[0].ID, "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Page: {/, /index.html}") {
			t.Errorf("expected stored sitemap, got:\n%s", stdout)
		}
	})

	t.Run("compare reports changed content", func(t *testing.T) {
		stdout, _, err := execute(t, "compare", site.URL, "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Changed URLs (1):\n  [~] /about\n") {
			t.Errorf("expected /about to change, got:\n%s", stdout)
		}
		if !strings.Contains(stdout, "Unchanged: 2 URLs") {
			t.Errorf("expected two unchanged URLs, got:\n%s", stdout)
		}
	})

	t.Run("compare as JSON", func(t *testing.T) {
		stdout, _, err := execute(t, "compare", site.URL, "--db-dir", dbDir, "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var result ComparisonResult
		if err := json.Unmarshal([]byte(stdout), &result); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(result.Changed) != 1 || len(result.Added) != 0 || len(result.Removed) != 0 {
			t.Errorf("unexpected comparison %+v", result)
		}
	})

	t.Run("compare as Markdown", func(t *testing.T) {
		stdout, _, err := execute(t, "compare", site.URL, "--db-dir", dbDir, "--markdown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "## Changed URLs (1)") {
			t.Errorf("unexpected markdown:\n%s", stdout)
		}
	})

	t.Run("compare with unknown run", func(t *testing.T) {
		_, _, err := execute(t, "compare", site.URL, "--db-dir", dbDir, "--with", "nope")
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("history deletes a run", func(t *testing.T) {
		_, _, err := execute(t, "history", "--delete", "nope", "--db-dir", dbDir)
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}

		db, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		runs, err := db.ListRuns(context.Background(), "", 1)
		db.Close()
		if err != nil || len(runs) != 1 {
			t.Fatalf("failed to list runs: %v", err)
		}

		stdout, _, err := execute(t, "history", "--delete", runs[0].ID, "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Deleted run "+runs[0].ID) {
			t.Errorf("unexpected output:\n%s", stdout)
		}

		_, _, err = execute(t, "compare", site.URL, "--db-dir", dbDir)
		if err == nil || !strings.Contains(err.Error(), "at least 2") {
			t.Errorf("expected 'at least 2' error after delete, got %v", err)
		}
	})
}

// TestFormatDelta tests signed delta formatting.
func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta int
		want  string
	}{
		{3, "+3"},
		{0, "0"},
		{-2, "-2"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.delta); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.delta, got, tt.want)
		}
	}
}
