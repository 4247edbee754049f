package report

import (
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitecrawl/internal/crawler"
	"github.com/nao1215/sitecrawl/internal/sitemap"
)

// MarkdownWriter outputs results in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides tables, lists, code blocks and GitHub alerts.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *crawler.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := NewSummary(result)

	w.writeHeader(md, result, summary)
	w.writeSummary(md, summary)
	w.writePages(md, result)
	w.writeFailed(md, result.Failed)
	w.writePending(md, result.Pending)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *crawler.Result, s *Summary) {
	md.H1("Sitemap")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root", "`" + s.Root + "`"},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.Duration.Round(time.Millisecond).String()},
			{"Status", w.getStatusText(s)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on the crawl state.
func (w *MarkdownWriter) getStatusText(s *Summary) string {
	switch {
	case s.LimitReached:
		return "⚠️ Stopped at page limit"
	case s.State == crawler.Cancelled.String():
		return "⚠️ Interrupted (partial results)"
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the page counts and their distribution.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s *Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Item", "Count"},
		Rows: [][]string{
			{"Pages", humanize.Comma(int64(s.Pages))},
			{"Unique Pages", humanize.Comma(int64(s.UniquePages))},
			{"Static Assets", humanize.Comma(int64(s.StaticAssets))},
			{"External Links", humanize.Comma(int64(s.ExternalLinks))},
			{"Failed", humanize.Comma(int64(s.Failed))},
			{"Pending", humanize.Comma(int64(s.Pending))},
		},
	})
	md.PlainText("")

	if s.Pages+s.Failed > 0 {
		w.writePieChart(md, s)
	}

	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of how visited URLs ended up.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Visited URLs"),
		piechart.WithShowData(true),
	)

	if s.UniquePages > 0 {
		chart.LabelAndIntValue("Unique", uint64(s.UniquePages))
	}
	if s.Aliases() > 0 {
		chart.LabelAndIntValue("Duplicate content", uint64(s.Aliases()))
	}
	if s.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(s.Failed))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert describing how complete the sitemap is.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	switch {
	case s.LimitReached:
		md.Importantf(
			"The crawl stopped at the page limit. %d URL(s) were not visited.",
			s.Pending,
		)
	case s.State == crawler.Cancelled.String():
		md.Warningf(
			"The crawl was interrupted. %d URL(s) were not visited.",
			s.Pending,
		)
	case s.Failed > 0:
		md.Cautionf("%d URL(s) could not be fetched or parsed.", s.Failed)
	default:
		md.Tip("Every reachable page was visited.")
	}
	md.PlainText("")
}

// writePages writes one section per distinct page.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, result *crawler.Result) {
	md.H2("Pages")
	md.PlainText("")

	if result.SiteMap == nil || result.SiteMap.HashCount() == 0 {
		md.PlainText("No pages recorded.")
		md.PlainText("")
		return
	}

	for _, page := range result.SiteMap.Pages() {
		w.writePage(md, page)
	}
}

// writePage writes the aliases, links and assets of a page.
func (w *MarkdownWriter) writePage(md *markdown.Markdown, page *sitemap.Page) {
	md.H3("`" + page.URLs[0] + "`")
	md.PlainText("")

	if page.Title != "" {
		md.PlainTextf("**Title:** %s", page.Title)
		md.PlainText("")
	}
	if len(page.URLs) > 1 {
		md.PlainTextf("**Also served at:** %s", codeList(page.URLs[1:]))
		md.PlainText("")
	}

	w.writeSet(md, "Links", page.Links)
	w.writeSet(md, "Static Assets", page.StaticAssets)
	if len(page.ExternalLinks) > 0 {
		md.Details("External Links ("+humanize.Comma(int64(len(page.ExternalLinks)))+")",
			"- "+strings.Join(page.ExternalLinks, "\n- "))
		md.PlainText("")
	}
}

// writeSet writes a labelled bullet list, or "none" for an empty set.
func (w *MarkdownWriter) writeSet(md *markdown.Markdown, label string, items []string) {
	if len(items) == 0 {
		md.PlainTextf("**%s:** none", label)
		md.PlainText("")
		return
	}
	md.PlainTextf("**%s:**", label)
	md.PlainText("")
	md.BulletList(items...)
	md.PlainText("")
}

// writeFailed writes a table of failed URLs.
func (w *MarkdownWriter) writeFailed(md *markdown.Markdown, failed []crawler.FailedLink) {
	if len(failed) == 0 {
		return
	}

	md.H2("Failed Links")
	md.PlainText("")

	rows := make([][]string, len(failed))
	for i, f := range failed {
		rows[i] = []string{"`" + f.URL + "`", truncateString(f.Reason, 80)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePending writes the URLs that were still waiting when the crawl stopped.
func (w *MarkdownWriter) writePending(md *markdown.Markdown, pending []string) {
	if len(pending) == 0 {
		return
	}

	md.H2("Pending Links")
	md.PlainText("")
	md.BulletList(pending...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Sitemap generated by [sitecrawl](https://github.com/nao1215/sitecrawl)*")
}

// codeList renders items as comma-separated inline code.
func codeList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "`" + item + "`"
	}
	return strings.Join(quoted, ", ")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
