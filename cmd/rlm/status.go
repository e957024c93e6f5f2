package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/analysis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint, storage, cache and recent runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, e, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	defer svc.Close()

	st, err := svc.Status(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(st)
	}

	printHeading("rlm status")
	fmt.Printf("  %s %s\n", mutedStyle.Render("work dir:  "), st.WorkDir)
	fmt.Printf("  %s %s\n", mutedStyle.Render("dispatcher:"), st.Dispatcher)
	fmt.Printf("  %s %s, %d stored analyses\n", mutedStyle.Render("storage:   "), st.Backend, st.Records)
	cacheState := "disabled"
	if st.CacheEnabled {
		cacheState = fmt.Sprintf("%d entries (%d expired, %d corrupt)", st.Cache.Entries, st.Cache.Expired, st.Cache.Corrupt)
	}
	fmt.Printf("  %s %s\n", mutedStyle.Render("cache:     "), cacheState)
	fmt.Println()

	printCheckpoint(st)

	if len(st.RecentRuns) > 0 {
		fmt.Println()
		printHeading("Recent runs")
		return printRuns(st.RecentRuns, nil)
	}
	return nil
}

func printCheckpoint(st *analysis.Status) {
	switch {
	case st.CheckpointError != "":
		printStatus("✗", "Checkpoint is unreadable: "+st.CheckpointError, color.FgRed)
		fmt.Println("  Discard it with 'rlm checkpoint clear'.")
	case st.Interrupted != nil:
		ir := st.Interrupted
		printStatus("↻", fmt.Sprintf("Interrupted run %s resumes on the next analyze", ir.RunID), color.FgCyan)
		fmt.Printf("  %s %s\n", mutedStyle.Render("query:"), oneLine(ir.Query, 80))
		fmt.Printf("  %s %s\n", mutedStyle.Render("path: "), ir.Path)
		fmt.Printf("  %s depth %d, %d stacked, %d results, last activity %s\n",
			mutedStyle.Render("state:"), ir.Depth, ir.StackSize, ir.Results, ir.LastActivity.Local().Format("2006-01-02 15:04:05"))
	default:
		printStatus("✓", "No interrupted run", color.FgGreen)
	}
}
