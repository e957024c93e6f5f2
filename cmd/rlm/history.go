package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/state"
)

var (
	historyLimit int
	historyRuns  bool
	historyPurge time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored analyses or recent runs",
	Long: `List stored analyses, newest first.

With --runs, list the run ledger instead: every call to analyze with its
status, dispatch count, cost and recursion depth. --purge deletes finished
runs older than the given age first.

Examples:
  rlm history
  rlm history --runs --purge 720h`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of rows")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "List ledger runs instead of stored analyses")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete finished runs older than this age")
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, e, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	defer svc.Close()

	if historyPurge > 0 {
		n, err := svc.PurgeRuns(historyPurge)
		if err != nil {
			return fmt.Errorf("purge runs: %w", err)
		}
		if !jsonOut {
			printStatus("✓", fmt.Sprintf("Purged %d finished run(s)", n), color.FgGreen)
		}
	}

	if historyRuns {
		return printRuns(svc.Runs(historyLimit))
	}

	entries, err := svc.History(cmd.Context())
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}
	if jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		printStatus("?", "No stored analyses.", color.FgYellow)
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, en := range entries {
		rows = append(rows, []string{
			en.Timestamp.Local().Format("2006-01-02 15:04"),
			oneLine(en.Query, 48),
			en.Focus,
			oneLine(en.Path, 32),
			strconv.Itoa(en.FilesTracked),
			en.StorageBackend,
		})
	}
	fmt.Println(renderTable([]string{"When", "Query", "Focus", "Path", "Files", "Backend"}, rows))
	return nil
}

func printRuns(runs []state.Run, err error) error {
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		printStatus("?", "No runs recorded.", color.FgYellow)
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := string(r.Status)
		if r.ErrorKind != "" {
			status += " (" + r.ErrorKind + ")"
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(r.ID),
			status,
			oneLine(r.Query, 40),
			strconv.Itoa(r.SubagentCalls),
			strconv.Itoa(r.CacheHits),
			strconv.Itoa(r.MaxDepth),
			fmt.Sprintf("$%.4f", r.TotalCost),
		})
	}
	fmt.Println(renderTable([]string{"Started", "Run", "Status", "Query", "Calls", "Hits", "Depth", "Cost"}, rows))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
