package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/analysis"
	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/internal/tui"
)

var (
	analyzeFocus    string
	analyzeForce    bool
	analyzeProgress bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path> <query>",
	Short: "Analyze a file or directory",
	Long: `Analyze a file or directory by recursively decomposing the query.

If the stored analysis of the path is still current it is printed without
re-running; use --force to re-analyze anyway.

If a previous run was interrupted (Ctrl+C, a crash, or a recursion or
iteration ceiling) its checkpoint is resumed and the given path and query are
ignored. Use 'rlm checkpoint clear' to discard it instead.

Examples:
  rlm analyze . "How does authentication work?"
  rlm analyze ./api "Find SQL injection risks" --focus security
  rlm analyze docs/ "Which endpoints are undocumented?" --progress`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeFocus, "focus", "", "Focus area: security, architecture, performance, documentation, testing, general")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "Re-analyze even if the stored analysis is current")
	analyzeCmd.Flags().BoolVar(&analyzeProgress, "progress", false, "Show a live progress view")
}

type analyzeOutcome struct {
	resp *analysis.Response
	err  error
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := analysis.Request{
		Path:         args[0],
		Query:        strings.Join(args[1:], " "),
		Focus:        analyzeFocus,
		ForceRefresh: analyzeForce,
	}

	var out analyzeOutcome
	if analyzeProgress && !jsonOut {
		out = analyzeWithProgress(ctx, req)
	} else {
		svc, e, err := openService(ctx, false)
		if err != nil {
			return err
		}
		defer e.Close()
		defer svc.Close()
		out.resp, out.err = svc.Analyze(ctx, req)
	}

	return reportAnalysis(out)
}

// analyzeWithProgress runs the analysis behind the progress view. Quitting
// the view cancels the run, leaving its checkpoint for the next call.
func analyzeWithProgress(ctx context.Context, req analysis.Request) analyzeOutcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logs would corrupt the display; only the debug file receives them.
	e, err := loadEnv(true)
	if err != nil {
		return analyzeOutcome{err: err}
	}
	defer e.Close()

	emitter := orchestrator.NewEventEmitter(256, e.logger)
	svc, err := analysis.New(ctx, e.cfg, e.dir,
		analysis.WithLogger(e.logger),
		analysis.WithEventEmitter(emitter),
	)
	if err != nil {
		return analyzeOutcome{err: err}
	}
	defer svc.Close()

	program, _ := tui.NewProgressProgram(req.Path, req.Query, e.cfg.Orchestrator.MaxRecursionDepth)
	go tui.Forward(program, emitter.Events())

	done := make(chan analyzeOutcome, 1)
	go func() {
		resp, err := svc.Analyze(ctx, req)
		emitter.Close()

		msg := tui.DoneMsg{Err: err}
		switch {
		case err != nil:
		case !resp.Success:
			msg.Err = errors.New(resp.Error)
		case resp.Fresh:
			msg.Summary = "stored analysis is current"
		default:
			msg.Summary = fmt.Sprintf("%d dispatches, %d cache hits", resp.Stats.SubagentCalls, resp.Stats.CacheHits)
		}
		program.Send(msg)
		done <- analyzeOutcome{resp: resp, err: err}
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return analyzeOutcome{err: fmt.Errorf("progress view: %w", err)}
	}
	cancel()
	return <-done
}

func reportAnalysis(out analyzeOutcome) error {
	if out.err != nil {
		var ce *orchestrator.CeilingError
		switch {
		case errors.As(out.err, &ce):
			printStatus("✗", out.err.Error(), color.FgRed)
			fmt.Println("  The run is checkpointed. Raise the limit in your config and run analyze again to resume,")
			fmt.Println("  or discard it with 'rlm checkpoint clear'.")
		case errors.Is(out.err, context.Canceled):
			printStatus("⚠", "Interrupted; the run is checkpointed and resumes on the next analyze.", color.FgYellow)
		}
		return out.err
	}

	resp := out.resp
	if jsonOut {
		if err := printJSON(resp); err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("analysis failed (%s)", resp.Kind)
		}
		return nil
	}

	if !resp.Success {
		printStatus("✗", fmt.Sprintf("Analysis failed (%s): %s", resp.Kind, resp.Error), color.FgRed)
		return fmt.Errorf("analysis failed (%s)", resp.Kind)
	}

	switch {
	case resp.Fresh:
		printStatus("✓", "Stored analysis is current; use --force to re-analyze.", color.FgGreen)
	case resp.Resumed:
		printStatus("↻", fmt.Sprintf("Resumed interrupted run %s", resp.RunID), color.FgCyan)
	case resp.Staleness != nil:
		printStatus("⚠", fmt.Sprintf("Re-analyzed: %s", resp.Staleness.Summary()), color.FgYellow)
	}

	fmt.Println()
	if resp.Result != nil {
		fmt.Println(resp.Result.Content)
	}
	fmt.Println()

	s := resp.Stats
	fmt.Println(mutedStyle.Render(fmt.Sprintf(
		"dispatches %d · cache hits %d · max depth %d · tokens %d · cost $%.4f · files %d · %s",
		s.SubagentCalls, s.CacheHits, s.MaxDepthReached, s.TotalTokens, s.TotalCostUSD, resp.FilesTracked, resp.RecordFile)))
	return nil
}
