package mcpserver

import "github.com/ShayCichocki/rlm/internal/staleness"

// AnalyzeArgs is the input for the rlm_analyze tool.
type AnalyzeArgs struct {
	Path  string `json:"path,omitempty" jsonschema:"Path to the file or directory to analyze (default: current directory)"`
	Query string `json:"query" jsonschema:"What to analyze or find, e.g. 'Explain the authentication flow'"`
	// Focus is one of security, architecture, performance, documentation,
	// testing or general.
	Focus        string `json:"focus,omitempty" jsonschema:"Optional focus area: security, architecture, performance, documentation, testing or general"`
	ForceRefresh bool   `json:"force_refresh,omitempty" jsonschema:"Re-analyze even if the stored analysis is current"`
}

// FreshnessArgs is the input for the rlm_check_freshness tool.
type FreshnessArgs struct {
	Path string `json:"path,omitempty" jsonschema:"Path that was previously analyzed (default: current directory)"`
}

// FreshnessOutput reports whether a stored analysis is current.
type FreshnessOutput struct {
	Fresh     bool              `json:"fresh"`
	Message   string            `json:"message"`
	Staleness *staleness.Report `json:"staleness_info"`
}

// StatusArgs is the (empty) input for the rlm_status tool.
type StatusArgs struct{}

// SearchArgs is the input for the rlm_search_rag tool.
type SearchArgs struct {
	Query      string `json:"query" jsonschema:"What to search for in previous analyses"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results to return (default: 5)"`
	// IncludeStale defaults to true when omitted.
	IncludeStale *bool `json:"include_stale,omitempty" jsonschema:"Include results whose files changed since analysis (default: true, with warnings)"`
}

var validFocus = map[string]bool{
	"":              true,
	"security":      true,
	"architecture":  true,
	"performance":   true,
	"documentation": true,
	"testing":       true,
	"general":       true,
}

const analyzeDescription = `Analyze code, documentation, or any files by recursively decomposing the task into smaller sub-tasks.

Change detection: every analysis records a hash of each analyzed file, and later calls report when those files changed.

Use this tool to understand a codebase, find patterns or vulnerabilities across many files, review documentation, or explain how a large system works.

Results are stored under .rlm/ in the working directory. If the stored analysis of the path is still current it is returned without re-running; set force_refresh to re-analyze.`

const freshnessDescription = `Check whether the previous analysis of a path is still current.

Returns whether files changed since the last analysis, the changed, new and deleted files, and a recommendation.`

const statusDescription = `Show the state of rlm in the working directory: any interrupted run, stored analyses, cache usage, and recent runs with their costs and recursion depth.`

const searchDescription = `Search previously stored analyses without re-analyzing.

Each result is flagged when the files it was computed from changed since; set include_stale to false to drop those results.`
