package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [DOMAIN_ROOT]",
		Short: "List saved crawl results",
		Long: `History lists crawl results saved with 'sitecrawl crawl --save'.

Without a domain root every saved run is listed, newest first. Use --show to
print the sitemap of one run again.

Examples:
  # List saved runs for a site
  sitecrawl history www.example.com

  # List the roots that have saved runs
  sitecrawl history --roots

  # Print the sitemap stored by a run
  sitecrawl history --show 0b6f3c1e-...

  # Remove a run from the archive
  sitecrawl history --delete 0b6f3c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().BoolP("roots", "r", false,
		"List the domain roots that have saved runs")
	cmd.Flags().String("show", "",
		"Print the sitemap stored by the run with this ID")
	cmd.Flags().String("delete", "",
		"Remove the run with this ID from the archive")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the result archive")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	listRoots, err := flags.GetBool("roots")
	if err != nil {
		return err
	}
	showID, err := flags.GetString("show")
	if err != nil {
		return err
	}
	deleteID, err := flags.GetString("delete")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var root string
	if len(args) > 0 {
		if root, err = normalizeRootArg(args[0]); err != nil {
			return err
		}
	}

	db, err := openArchive(dbDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case listRoots:
		return listSavedRoots(ctx, db, out)
	case deleteID != "":
		if err := db.DeleteRun(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run %s\n", deleteID)
		return nil
	case showID != "":
		return showRun(ctx, db, showID, getVerboseFlag(cmd), out)
	default:
		return listRunHistory(ctx, db, root, limit, out)
	}
}

// listSavedRoots prints every root with saved runs.
func listSavedRoots(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	roots, err := db.ListRoots(ctx)
	if err != nil {
		return err
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No saved crawls found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Crawled roots (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'sitecrawl history <root>' to see the runs of a root.")

	return nil
}

// listRunHistory prints run metadata as a table.
func listRunHistory(ctx context.Context, db *database.CrawlDB, root string, limit int, out io.Writer) error {
	runs, err := db.ListRuns(ctx, root, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		if root != "" {
			fmt.Fprintf(out, "No saved crawls found for %s\n", root)
		} else {
			fmt.Fprintln(out, "No saved crawls found in the database.")
		}
		return nil
	}

	fmt.Fprintf(out, "  %-36s  %-16s  %-10s  %-14s  %-8s  %-8s  %s\n",
		"ID", "Started", "State", "Pages", "Failed", "Size", "Root")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 120))

	for _, run := range runs {
		state := run.State.String()
		if run.LimitReached {
			state += "*"
		}
		fmt.Fprintf(out, "  %-36s  %-16s  %-10s  %-14s  %-8s  %-8s  %s\n",
			run.ID,
			humanize.Time(run.StartedAt),
			state,
			fmt.Sprintf("%s (%s)", humanize.Comma(int64(run.Pages)), humanize.Comma(int64(run.UniquePages))),
			humanize.Comma(int64(run.Failed)),
			humanize.Bytes(uint64(max(run.Size, 0))),
			run.Root,
		)
	}

	fmt.Fprintln(out, "\nPages are listed as total (unique). * marks runs stopped at the page limit.")
	fmt.Fprintln(out, "Use 'sitecrawl compare <root>' to compare the latest two runs.")

	return nil
}

// showRun prints the sitemap stored by a run.
func showRun(ctx context.Context, db *database.CrawlDB, id string, verbose bool, out io.Writer) error {
	result, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %s of %s, started %s (%s)\n\n",
		id, result.Root,
		result.StartedAt.Local().Format("2006-01-02 15:04:05"),
		result.Duration().Round(time.Millisecond))

	_, err = report.NewSimpleWriter(out, report.WithVerbose(verbose)).Write(result)
	return err
}
