package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitecrawl"

	// DefaultTimeout bounds a single page request including the body read.
	// Most pages arrive well within this; slow pages are recorded as failed
	// instead of stalling a whole batch.
	DefaultTimeout = 30 * time.Second

	// DefaultConcurrency is the number of pages fetched at the same time.
	DefaultConcurrency = 8

	// DefaultMaxPages of 0 means the crawl runs until the frontier is empty.
	DefaultMaxPages = 0

	// DefaultUserAgent identifies sitecrawl in HTTP requests.
	// Using a descriptive User-Agent allows operators to identify crawler
	// traffic in their logs.
	DefaultUserAgent = "sitecrawl/1.0 (+https://github.com/nao1215/sitecrawl)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	// 5MB is sufficient for most HTML pages while preventing memory exhaustion
	// from unexpectedly large responses.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Config holds all configuration options for a crawl.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The number of options is manageable, and nesting would add
// complexity without significant benefit.
type Config struct {
	// Root is the domain root to crawl, as given on the command line.
	// A missing scheme is filled in with "http://" by the crawler.
	Root string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	// When empty, requests go out directly.
	ProxyAddress string

	// Timeout is the timeout for each HTTP request.
	Timeout time.Duration

	// Concurrency is the number of pages fetched at the same time.
	Concurrency int

	// MaxPages stops the crawl once this many URLs are recorded.
	// 0 means no limit.
	MaxPages int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport enables JSON output instead of the text sitemap.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown output instead of the text sitemap.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ShowExternalLinks adds each page's links to other hosts to the text
	// sitemap. JSON and Markdown output always include them.
	ShowExternalLinks bool

	// OutputFile is the output file path for the sitemap.
	// When set, the sitemap is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	OutputFile string

	// DBDir is the directory path for storing the SQLite result archive.
	// Defaults to XDG data directory (~/.local/share/sitecrawl on Linux).
	DBDir string

	// SaveToDB indicates whether to archive the crawl result.
	SaveToDB bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Responses larger than this are truncated to prevent memory exhaustion.
	// Set to 0 to use the default (5MB).
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeout, concurrency).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		MaxPages:    DefaultMaxPages,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for sitecrawl.
// On Linux: ~/.local/share/sitecrawl
// On macOS: ~/Library/Application Support/sitecrawl
// On Windows: %LOCALAPPDATA%\sitecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitecrawl.
// On Linux: ~/.config/sitecrawl
// On macOS: ~/Library/Application Support/sitecrawl
// On Windows: %APPDATA%\sitecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// We return the first error found because fixing one error often makes
// others irrelevant.
func (c *Config) Validate() error {
	if c.Root == "" {
		return ErrNoTarget
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// Site returns the merged site configuration for host, or the zero value
// when no configuration file was loaded.
func (c *Config) Site(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}
