package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ShayCichocki/rlm/internal/cache"
	"github.com/ShayCichocki/rlm/internal/staleness"
	"github.com/ShayCichocki/rlm/internal/state"
	"github.com/ShayCichocki/rlm/internal/storage"
)

// recentRuns is how many ledger rows Status reports.
const recentRuns = 5

// Hit is a search result annotated with the freshness of its path.
type Hit struct {
	storage.SearchResult
	Stale   bool   `json:"stale"`
	Warning string `json:"warning,omitempty"`
}

// SearchResponse is the outcome of Search.
type SearchResponse struct {
	Hits    []Hit  `json:"results"`
	Count   int    `json:"count"`
	Backend string `json:"backend"`
	Message string `json:"message,omitempty"`
	// Dropped counts stale hits removed because stale results were excluded.
	Dropped int `json:"dropped,omitempty"`
}

// Search ranks stored analyses against query. Each hit carries a warning
// when files under its path changed since it was stored; with includeStale
// false those hits are dropped.
func (s *Service) Search(ctx context.Context, query string, limit int, includeStale bool) (*SearchResponse, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	results, err := s.backend.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	resp := &SearchResponse{Hits: make([]Hit, 0, len(results)), Backend: s.backend.Name()}
	if len(results) == 0 {
		resp.Message = "No previous analyses matched. Run an analysis first."
		return resp, nil
	}

	reports := make(map[string]*staleness.Report)
	for _, r := range results {
		hit := Hit{SearchResult: r}
		report, ok := reports[r.Entry.Path]
		if !ok {
			report, err = s.detector.Check(ctx, r.Entry.Path)
			if err != nil {
				s.logger.Debug("freshness of search hit", "path", r.Entry.Path, "error", err)
				report = nil
			}
			reports[r.Entry.Path] = report
		}
		if report != nil && report.Stale {
			hit.Stale = true
			hit.Warning = staleWarning(report)
		}
		if hit.Stale && !includeStale {
			resp.Dropped++
			continue
		}
		resp.Hits = append(resp.Hits, hit)
	}
	resp.Count = len(resp.Hits)
	if resp.Dropped > 0 {
		resp.Message = "Some stored analyses are stale. Re-analyze to refresh them."
	}
	return resp, nil
}

func staleWarning(r *staleness.Report) string {
	switch r.Reason {
	case staleness.ReasonNoHashTracking:
		return "Data may be outdated. The analysis was stored without file hashes."
	case staleness.ReasonMissingFile:
		return "Data may be outdated. The latest analysis of this path is missing from storage."
	}
	return fmt.Sprintf("Data may be outdated. %d files changed since last analysis.", r.TotalChanges)
}

// History returns stored analysis summaries, newest first.
func (s *Service) History(ctx context.Context) ([]storage.IndexEntry, error) {
	entries, err := s.backend.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	slices.Reverse(entries)
	return entries, nil
}

// Status describes the working directory's analysis state.
type Status struct {
	WorkDir string `json:"work_dir"`
	Backend string `json:"backend"`
	Records int    `json:"records"`
	// Interrupted is the checkpointed run, if any.
	Interrupted *state.InterruptedRun `json:"interrupted,omitempty"`
	// CheckpointError is set when a checkpoint exists but cannot be read.
	CheckpointError string      `json:"checkpoint_error,omitempty"`
	Cache           cache.Stats `json:"cache"`
	CacheEnabled    bool        `json:"cache_enabled"`
	RecentRuns      []state.Run `json:"recent_runs,omitempty"`
	Dispatcher      string      `json:"dispatcher"`
}

// Status reports the checkpoint, storage, cache and recent runs.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		WorkDir:      s.workDir,
		Backend:      s.backend.Name(),
		CacheEnabled: s.cache.Enabled(),
		Dispatcher:   fmt.Sprint(s.dispatcher),
	}

	ir, err := s.recovery().CheckForInterrupted()
	if err != nil {
		var corrupt *state.CorruptCheckpointError
		if !errors.As(err, &corrupt) {
			return nil, err
		}
		st.CheckpointError = err.Error()
	}
	st.Interrupted = ir

	entries, err := s.backend.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	st.Records = len(entries)

	if cs, err := s.cache.Stats(); err != nil {
		s.logger.Warn("cache stats", "error", err)
	} else {
		st.Cache = cs
	}

	if s.ledger != nil {
		runs, err := s.ledger.ListRuns(nil, recentRuns)
		if err != nil {
			s.logger.Warn("list runs", "error", err)
		} else {
			st.RecentRuns = runs
		}
	}
	return st, nil
}

// Runs returns up to limit ledger rows, newest first. It returns nil when no
// ledger is open.
func (s *Service) Runs(limit int) ([]state.Run, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.ListRuns(nil, limit)
}

// PurgeRuns deletes finished ledger rows older than age and returns how
// many it removed.
func (s *Service) PurgeRuns(age time.Duration) (int64, error) {
	if s.ledger == nil {
		return 0, nil
	}
	return s.ledger.PurgeOldRuns(age)
}

// AbandonCheckpoint discards the interrupted run, if any.
func (s *Service) AbandonCheckpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovery().Abandon()
}
