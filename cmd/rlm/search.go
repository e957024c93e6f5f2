package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/analysis"
)

var (
	searchLimit     int
	searchFreshOnly bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search stored analyses",
	Long: `Search previously stored analyses without re-running them.

Results whose files changed since they were stored are flagged; use
--fresh-only to drop them.

Examples:
  rlm search "authentication"
  rlm search "sql injection" --limit 10 --fresh-only`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", analysis.DefaultSearchLimit, "Maximum number of results")
	searchCmd.Flags().BoolVar(&searchFreshOnly, "fresh-only", false, "Drop results whose files changed since analysis")
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, e, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	defer svc.Close()

	resp, err := svc.Search(cmd.Context(), strings.Join(args, " "), searchLimit, !searchFreshOnly)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}

	if resp.Count == 0 {
		msg := "No matching analyses."
		if resp.Message != "" {
			msg = resp.Message
		}
		printStatus("?", msg, color.FgYellow)
		return nil
	}

	printHeading(fmt.Sprintf("%d result(s) via %s", resp.Count, resp.Backend))
	fmt.Println()
	for i, hit := range resp.Hits {
		symbol, attr := "✓", color.FgGreen
		if hit.Stale {
			symbol, attr = "⚠", color.FgYellow
		}
		printStatus(symbol, fmt.Sprintf("%d. %s  %s", i+1, hit.Entry.Query,
			mutedStyle.Render("score "+strconv.FormatFloat(hit.Score, 'f', 3, 64))), attr)
		fmt.Printf("   %s %s · %s\n", mutedStyle.Render("path:"), hit.Entry.Path, hit.Entry.Timestamp.Local().Format("2006-01-02 15:04"))
		if hit.Warning != "" {
			fmt.Printf("   %s\n", color.YellowString(hit.Warning))
		}
		if hit.Record != nil && hit.Record.Result != nil {
			fmt.Printf("   %s\n", oneLine(hit.Record.Result.Content, 100))
		}
		fmt.Println()
	}
	if resp.Dropped > 0 {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("%d stale result(s) hidden", resp.Dropped)))
	}
	return nil
}
