package main

import (
	"github.com/spf13/cobra"
)

var freshnessCmd = &cobra.Command{
	Use:   "freshness [path]",
	Short: "Check whether the stored analysis of a path is current",
	Long: `Compare the files under a path against the hashes recorded by its most
recent analysis and report changed, new and deleted files.

Examples:
  rlm freshness
  rlm freshness ./internal/auth`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFreshness,
}

func runFreshness(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) == 1 {
		path = args[0]
	}

	svc, e, err := openService(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer e.Close()
	defer svc.Close()

	report, err := svc.Freshness(cmd.Context(), path)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(report)
	}
	printReport(path, report)
	return nil
}
