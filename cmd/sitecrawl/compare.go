package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/spf13/cobra"
)

// NewCompareCmd creates the compare command.
// This command compares the pages of two saved runs of the same root.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare DOMAIN_ROOT",
		Short: "Compare the sitemaps of two saved crawls",
		Long: `Compare shows how a site changed between two saved crawls:
- URLs that appeared since the previous run
- URLs that are no longer reachable
- URLs whose content changed (different content hash)

The comparison requires at least two runs saved with 'sitecrawl crawl --save'
for the domain root.

Examples:
  # Compare the latest two runs
  sitecrawl compare www.example.com

  # Compare the latest run with a specific earlier run
  sitecrawl compare --with 0b6f3c1e-... www.example.com

  # Output the comparison in JSON format
  sitecrawl compare --json www.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().StringP("with", "w", "",
		"Compare the latest run with the run with this ID (use 'sitecrawl history' to see IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the result archive")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	withID, err := flags.GetString("with")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	root, err := normalizeRootArg(args[0])
	if err != nil {
		return err
	}

	db, err := openArchive(dbDir)
	if err != nil {
		return err
	}
	defer db.Close()

	comparison, err := compareRuns(cmd.Context(), db, root, withID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return outputComparisonJSON(out, comparison)
	case markdownOutput:
		return outputComparisonMarkdown(out, comparison)
	default:
		return outputComparisonText(out, comparison)
	}
}

// RunSummary describes one side of a comparison.
type RunSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	State       string    `json:"state"`
	Pages       int       `json:"pages"`
	UniquePages int       `json:"unique_pages"`
	Failed      int       `json:"failed"`
}

// ComparisonResult holds the result of comparing two runs.
type ComparisonResult struct {
	Root      string     `json:"root"`
	Previous  RunSummary `json:"previous"`
	Current   RunSummary `json:"current"`
	Added     []string   `json:"added"`
	Removed   []string   `json:"removed"`
	Changed   []string   `json:"changed"`
	Unchanged int        `json:"unchanged"`
}

// compareRuns diffs the latest run of root against withID, or against the
// run before it when withID is empty.
func compareRuns(ctx context.Context, db *database.CrawlDB, root, withID string) (*ComparisonResult, error) {
	runs, err := db.ListRuns(ctx, root, 0)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no saved crawls found for %s", root)
	}

	current := runs[0]
	var previous *database.RunMetadata
	if withID != "" {
		for i := range runs {
			if runs[i].ID == withID {
				previous = &runs[i]
				break
			}
		}
		if previous == nil {
			return nil, fmt.Errorf("%w: %s has no run %s", database.ErrRunNotFound, root, withID)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("run %s is the latest run; pick an earlier one", withID)
		}
	} else {
		if len(runs) < 2 {
			return nil, fmt.Errorf("at least 2 saved crawls are required for comparison (found %d)", len(runs))
		}
		previous = &runs[1]
	}

	diff, err := db.CompareRuns(ctx, previous.ID, current.ID)
	if err != nil {
		return nil, err
	}

	return &ComparisonResult{
		Root:      root,
		Previous:  summarizeRun(*previous),
		Current:   summarizeRun(current),
		Added:     nonNil(diff.Added),
		Removed:   nonNil(diff.Removed),
		Changed:   nonNil(diff.Changed),
		Unchanged: diff.Unchanged,
	}, nil
}

func summarizeRun(m database.RunMetadata) RunSummary {
	return RunSummary{
		ID:          m.ID,
		StartedAt:   m.StartedAt,
		State:       m.State.String(),
		Pages:       m.Pages,
		UniquePages: m.UniquePages,
		Failed:      m.Failed,
	}
}

// nonNil keeps empty lists as [] in JSON output.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Crawl Comparison: " + result.Root)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", "`" + result.Previous.ID + "`", "`" + result.Current.ID + "`", "-"},
			{"Date",
				result.Previous.StartedAt.Local().Format("2006-01-02 15:04"),
				result.Current.StartedAt.Local().Format("2006-01-02 15:04"), "-"},
			{"Pages", strconv.Itoa(result.Previous.Pages), strconv.Itoa(result.Current.Pages),
				formatDelta(result.Current.Pages - result.Previous.Pages)},
			{"Unique Pages", strconv.Itoa(result.Previous.UniquePages), strconv.Itoa(result.Current.UniquePages),
				formatDelta(result.Current.UniquePages - result.Previous.UniquePages)},
			{"Failed", strconv.Itoa(result.Previous.Failed), strconv.Itoa(result.Current.Failed),
				formatDelta(result.Current.Failed - result.Previous.Failed)},
		},
	})
	md.PlainText("")

	if len(result.Added)+len(result.Removed)+len(result.Changed) == 0 {
		md.Tip("No changes between the two crawls.")
		return md.Build()
	}

	writeMarkdownList(md, "Added URLs", result.Added)
	writeMarkdownList(md, "Removed URLs", result.Removed)
	writeMarkdownList(md, "Changed URLs", result.Changed)

	if result.Unchanged > 0 {
		md.HorizontalRule()
		md.PlainTextf("*%d URLs unchanged*", result.Unchanged)
	}

	return md.Build()
}

func writeMarkdownList(md *markdown.Markdown, title string, urls []string) {
	if len(urls) == 0 {
		return
	}
	md.H2(fmt.Sprintf("%s (%d)", title, len(urls)))
	md.PlainText("")
	md.BulletList(urls...)
	md.PlainText("")
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(out, "Crawl Comparison: %s\n", result.Root)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious run: %s (%s)\n", result.Previous.ID, humanize.Time(result.Previous.StartedAt))
	fmt.Fprintf(out, "Current run:  %s (%s)\n", result.Current.ID, humanize.Time(result.Current.StartedAt))

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-14s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 50))
	fmt.Fprintf(out, "  %-14s  %-10d  %-10d  %-10s\n", "Pages",
		result.Previous.Pages, result.Current.Pages,
		formatDelta(result.Current.Pages-result.Previous.Pages))
	fmt.Fprintf(out, "  %-14s  %-10d  %-10d  %-10s\n", "Unique Pages",
		result.Previous.UniquePages, result.Current.UniquePages,
		formatDelta(result.Current.UniquePages-result.Previous.UniquePages))
	fmt.Fprintf(out, "  %-14s  %-10d  %-10d  %-10s\n", "Failed",
		result.Previous.Failed, result.Current.Failed,
		formatDelta(result.Current.Failed-result.Previous.Failed))

	writeTextList(out, "Added URLs", "+", result.Added)
	writeTextList(out, "Removed URLs", "-", result.Removed)
	writeTextList(out, "Changed URLs", "~", result.Changed)

	if len(result.Added)+len(result.Removed)+len(result.Changed) == 0 {
		fmt.Fprintln(out, "\nNo changes.")
	}
	if result.Unchanged > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d URLs\n", result.Unchanged)
	}

	return nil
}

func writeTextList(out io.Writer, title, marker string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(urls))
	for _, u := range urls {
		fmt.Fprintf(out, "  [%s] %s\n", marker, u)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
