package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/fetcher"
	sclog "github.com/nao1215/sitecrawl/internal/log"
	"github.com/nao1215/sitecrawl/internal/report"
	"github.com/nao1215/sitecrawl/internal/urlutil"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl DOMAIN_ROOT",
		Short: "Crawl a domain and print its sitemap",
		Long: `Crawl starts from a domain root and follows forward page links within the
same domain, building a site map. Each record lists the URLs that served a
page, its forward links and its static assets.

A domain root without a scheme is prefixed with http://. Pressing Ctrl-C stops
the crawl and still prints the sitemap gathered so far; with -v the URLs that
were never visited are listed too.

Examples:
  # Crawl a site and print the sitemap
  sitecrawl crawl http://www.example.com

  # Write the sitemap to a file
  sitecrawl crawl www.example.com -o output.txt

  # Output JSON and keep the result for 'sitecrawl history'
  sitecrawl crawl --json --save www.example.com

  # Crawl through a SOCKS5 proxy, at most 500 pages
  sitecrawl crawl --proxy 127.0.0.1:1080 --max-pages 500 www.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of pages fetched at the same time")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Stop after recording this many URLs (0 means no limit)")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:1080)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with each request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitecrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output-file", "o", "",
		"Write the sitemap to the specified file (creates directories if needed)")
	cmd.Flags().Bool("external", false,
		"List links to other hosts in the text sitemap")

	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON instead of text")

	// Archive flags
	cmd.Flags().BoolP("save", "s", false,
		"Save the result for 'sitecrawl history' and 'sitecrawl compare'")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the result archive")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, logJSON)
	slog.SetDefault(logger)

	// Interrupting stops the crawl; the partial sitemap is still written.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = flags.GetString("output-file"); err != nil {
		return nil, err
	}
	if cfg.ShowExternalLinks, err = flags.GetBool("external"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	// A config file named with --config must exist; otherwise a missing file
	// means no site-specific settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	if len(args) > 0 {
		cfg.Root = args[0]
	}

	return cfg, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// Cookies and credentials in log attributes are masked.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return sclog.NewSecureJSONLogger(w, verbose)
	}
	return sclog.NewSecureLogger(w, verbose)
}

// runCrawl crawls cfg.Root and writes the sitemap.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	root, err := urlutil.NormalizeRoot(cfg.Root)
	if err != nil {
		return err
	}

	spider, err := newSpider(cfg, root.String(), siteConfigFor(cfg, root.Host, root.Hostname()), logger)
	if err != nil {
		return err
	}

	result, err := spider.Crawl(ctx)
	if err != nil {
		return err
	}

	if result.State == crawler.Cancelled {
		fmt.Fprintf(stderr, "Crawl interrupted: %s. Writing the partial sitemap.\n", spider.Stats())
	}

	if err := outputReport(cfg, result, stdout); err != nil {
		return fmt.Errorf("failed to write sitemap: %w", err)
	}

	if cfg.SaveToDB {
		// The crawl context may already be cancelled; saving must still happen.
		if err := saveResult(context.WithoutCancel(ctx), cfg.DBDir, result, logger); err != nil {
			return err
		}
	}

	return nil
}

// siteConfigFor returns the site configuration for the root host, trying
// host:port first and the bare hostname second.
func siteConfigFor(cfg *config.Config, host, hostname string) config.SiteConfig {
	if cfg.SiteConfigs != nil {
		if _, ok := cfg.SiteConfigs.Sites[host]; ok {
			return cfg.Site(host)
		}
	}
	return cfg.Site(hostname)
}

// newSpider builds the fetcher and spider for one crawl. Site settings
// override the global ones.
func newSpider(cfg *config.Config, root string, site config.SiteConfig, logger *slog.Logger) (*crawler.Spider, error) {
	client, err := fetcher.NewHTTPClient(cfg.ProxyAddress, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	userAgent := cfg.UserAgent
	if site.UserAgent != "" {
		userAgent = site.UserAgent
	}
	concurrency := cfg.Concurrency
	if site.Concurrency > 0 {
		concurrency = site.Concurrency
	}

	f := fetcher.New(
		fetcher.WithHTTPClient(client),
		fetcher.WithUserAgent(userAgent),
		fetcher.WithCookie(site.Cookie),
		fetcher.WithHeaders(site.Headers),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithLogger(logger),
	)

	return crawler.NewSpider(root, f,
		crawler.WithConcurrency(concurrency),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithVisitObserver(visitLogger(logger)),
		crawler.WithLogger(logger),
	)
}

// visitLogger reports each finished visit.
func visitLogger(logger *slog.Logger) func(crawler.Visit) {
	return func(v crawler.Visit) {
		if v.Err != nil {
			logger.Warn("page failed", "url", v.URL, "error", v.Err)
			return
		}
		logger.Info("page visited",
			"url", v.URL,
			"outcome", v.Outcome.String(),
			"new_links", v.NewLinks,
		)
	}
}

// outputReport writes the result in the requested format, to cfg.OutputFile
// when set and to stdout otherwise.
func outputReport(cfg *config.Config, result *crawler.Result, stdout io.Writer) error {
	output := stdout
	if cfg.OutputFile != "" {
		dir := filepath.Dir(cfg.OutputFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output,
			report.WithVerbose(cfg.Verbose),
			report.WithShowExternal(cfg.ShowExternalLinks),
		)
	}

	// A verbose run that writes to a file still shows the text sitemap.
	if cfg.OutputFile != "" && cfg.Verbose {
		w = report.NewMultiWriter(w, report.NewSimpleWriter(stdout,
			report.WithVerbose(true),
			report.WithShowExternal(cfg.ShowExternalLinks),
		))
	}

	_, err := w.Write(result)
	return err
}

// saveResult archives the result. The database is created on first use.
func saveResult(ctx context.Context, dbDir string, result *crawler.Result, logger *slog.Logger) error {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	id, err := db.SaveRun(ctx, result)
	if err != nil {
		return fmt.Errorf("failed to save crawl result: %w", err)
	}

	logger.Info("crawl result saved", "run_id", id, "db", db.Path())
	return nil
}

// errNoRuns is returned by history and compare when nothing was saved.
var errNoRuns = errors.New("no saved crawls (run 'sitecrawl crawl --save' first)")

// openArchive opens an existing result archive.
func openArchive(dbDir string) (*database.CrawlDB, error) {
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if errors.Is(err, database.ErrDatabaseNotFound) {
		return nil, errNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// normalizeRootArg turns a command line root into the form stored with runs.
func normalizeRootArg(raw string) (string, error) {
	u, err := urlutil.NormalizeRoot(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
