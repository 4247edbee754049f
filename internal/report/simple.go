package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/sitemap"
)

// pageIndent prefixes the Links and Static Assets lines of a page block.
const pageIndent = "    "

// SimpleWriter outputs the sitemap as plain text.
// Each distinct page is printed as one block:
//
//	Page: {/, /index.html}
//	    Links: [/about, /contact]
//	    Static Assets: [http://example.com/logo.png]
//
// followed by a blank line. Aliases keep their recorded order so the
// canonical URL comes first.
type SimpleWriter struct {
	baseWriter

	// showExternal adds an External Links line to each page block.
	showExternal bool

	// verbose appends the crawl summary, failed links and pending frontier.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowExternal adds each page's links to other hosts to its block.
func WithShowExternal(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showExternal = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the sitemap in plain text.
func (w *SimpleWriter) Write(result *crawler.Result) (int, error) {
	var sb strings.Builder

	if result.SiteMap != nil {
		for _, page := range result.SiteMap.Pages() {
			w.writePage(&sb, page)
		}
	}

	if w.verbose {
		w.writeSummary(&sb, result)
		w.writeFailed(&sb, result.Failed)
		w.writePending(&sb, result.Pending)
	}

	return io.WriteString(w.output, sb.String())
}

// writePage writes one page block.
func (w *SimpleWriter) writePage(sb *strings.Builder, page *sitemap.Page) {
	fmt.Fprintf(sb, "Page: {%s}\n", strings.Join(page.URLs, ", "))
	fmt.Fprintf(sb, "%sLinks: %s\n", pageIndent, formatList(page.Links))
	fmt.Fprintf(sb, "%sStatic Assets: %s\n", pageIndent, formatList(page.StaticAssets))
	if w.showExternal {
		fmt.Fprintf(sb, "%sExternal Links: %s\n", pageIndent, formatList(page.ExternalLinks))
	}
	sb.WriteString("\n")
}

// writeSummary writes the crawl statistics.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, result *crawler.Result) {
	s := NewSummary(result)

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Root:           %s\n", s.Root)
	fmt.Fprintf(sb, "State:          %s\n", w.stateText(s))
	fmt.Fprintf(sb, "Pages:          %s (%s unique)\n",
		humanize.Comma(int64(s.Pages)), humanize.Comma(int64(s.UniquePages)))
	fmt.Fprintf(sb, "Static Assets:  %s\n", humanize.Comma(int64(s.StaticAssets)))
	fmt.Fprintf(sb, "External Links: %s\n", humanize.Comma(int64(s.ExternalLinks)))
	fmt.Fprintf(sb, "Failed:         %s\n", humanize.Comma(int64(s.Failed)))
	fmt.Fprintf(sb, "Pending:        %s\n", humanize.Comma(int64(s.Pending)))
	fmt.Fprintf(sb, "Duration:       %s\n", s.Duration.Round(time.Millisecond))
}

// stateText describes how the crawl ended.
func (w *SimpleWriter) stateText(s *Summary) string {
	if s.LimitReached {
		return s.State + " (page limit reached)"
	}
	return s.State
}

// writeFailed lists the failed links with their reasons.
func (w *SimpleWriter) writeFailed(sb *strings.Builder, failed []crawler.FailedLink) {
	if len(failed) == 0 {
		return
	}
	sb.WriteString("\nFailed Links:\n")
	for _, f := range failed {
		fmt.Fprintf(sb, "  %s: %s\n", f.URL, f.Reason)
	}
}

// writePending lists the URLs the crawl never reached.
func (w *SimpleWriter) writePending(sb *strings.Builder, pending []string) {
	if len(pending) == 0 {
		return
	}
	sb.WriteString("\nPending Links:\n")
	for _, p := range pending {
		fmt.Fprintf(sb, "  %s\n", p)
	}
}

// formatList renders a string set as [a, b, c].
func formatList(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}
