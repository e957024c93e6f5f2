package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rlm/internal/analysis"
	"github.com/ShayCichocki/rlm/internal/config"
	"github.com/ShayCichocki/rlm/internal/logging"
)

var (
	workDir   string
	logLevel  string
	jsonOut   bool
	debugFile bool
)

var rootCmd = &cobra.Command{
	Use:   "rlm",
	Short: "Recursive analysis of codebases and documents",
	Long: `rlm analyzes code, documentation or any set of files far larger than a
model's context window by recursively decomposing the question into smaller
tasks.

Each run keeps an explicit task stack instead of native recursion, so depth
is bounded only by configuration and an interrupted run resumes from its
checkpoint (.rlm_state.json). Finished analyses are stored under .rlm/ with a
hash of every analyzed file, so later calls can tell when they went stale.

Core capabilities:
- Trampoline orchestration with recursion and iteration ceilings
- Result cache for repeated sub-tasks (.rlm_cache/)
- Keyword or vector search over stored analyses
- Change detection against the files an analysis was computed from
- MCP tool server for editor and agent integrations`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "Working directory holding .rlm/ state (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&debugFile, "debug-log", false, "Also write debug logs to "+logging.DefaultDebugFile)

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(freshnessCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// env is what every command that touches a working directory needs.
type env struct {
	dir      string
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

// resolveWorkDir returns the absolute working directory.
func resolveWorkDir() (string, error) {
	dir := workDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return abs, nil
}

// loadEnv loads configuration and builds the logger. Logs go to stderr so
// stdout stays clean for results; quiet drops them, except for the debug
// file.
func loadEnv(quiet bool) (*env, error) {
	dir, err := resolveWorkDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if debugFile && cfg.Logging.DebugFile == "" {
		cfg.Logging.DebugFile = logging.DefaultDebugFile
	}

	var w io.Writer
	if quiet {
		w = io.Discard
	}
	logger, closeLog, err := logging.New(logging.Options{
		Writer:    w,
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		DebugFile: cfg.Logging.DebugFile,
		WorkDir:   dir,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return &env{dir: dir, cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

func (e *env) Close() {
	_ = e.closeLog()
}

// openService loads the environment and opens the analysis service.
func openService(ctx context.Context, quiet bool, opts ...analysis.Option) (*analysis.Service, *env, error) {
	e, err := loadEnv(quiet)
	if err != nil {
		return nil, nil, err
	}
	opts = append([]analysis.Option{analysis.WithLogger(e.logger)}, opts...)
	svc, err := analysis.New(ctx, e.cfg, e.dir, opts...)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return svc, e, nil
}
