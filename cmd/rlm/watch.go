package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/staleness"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Report staleness whenever files under a path change",
	Long: `Watch a previously analyzed path and print a fresh staleness report
after every burst of file changes. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", staleness.DefaultDebounce, "Quiet period before re-checking")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	arg := "."
	if len(args) == 1 {
		arg = args[0]
	}

	svc, e, err := openService(ctx, false)
	if err != nil {
		return err
	}
	defer e.Close()
	defer svc.Close()

	path, err := staleness.NormalizePath(arg)
	if err != nil {
		return err
	}

	if !jsonOut {
		printStatus("●", fmt.Sprintf("Watching %s (Ctrl+C to stop)", path), color.FgCyan)
	}
	w := staleness.NewWatcher(svc.Detector(), path, watchDebounce)
	return w.Watch(ctx, func(r *staleness.Report) {
		if jsonOut {
			_ = printJSON(r)
			return
		}
		fmt.Println()
		fmt.Println(mutedStyle.Render(time.Now().Format(time.TimeOnly)))
		printReport(arg, r)
	})
}
