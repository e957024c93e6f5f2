// Package staleness decides whether a stored analysis still reflects the
// files it was computed from.
package staleness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ShayCichocki/rlm/internal/manifest"
	"github.com/ShayCichocki/rlm/internal/storage"
)

// Reasons reported on a Report.
const (
	ReasonNoData          = "no_data"
	ReasonNoHashTracking  = "no_hash_tracking"
	ReasonMissingFile     = "missing_file"
	ReasonChangesDetected = "changes_detected"
	ReasonUpToDate        = "up_to_date"
)

// Recommendations reported on a Report.
const (
	RecommendCurrent      = "Data is current"
	RecommendReanalyze    = "Re-analyze to update"
	RecommendEnableHashes = "Re-analyze to enable change detection"
	RecommendFirstRun     = "No previous analysis; run an analysis first"
	RecommendRestore      = "Stored analysis file is missing; re-analyze to replace it"
)

// Report is the outcome of a staleness check.
type Report struct {
	Stale          bool       `json:"stale"`
	Reason         string     `json:"reason"`
	ChangedFiles   []string   `json:"changed_files"`
	NewFiles       []string   `json:"new_files"`
	DeletedFiles   []string   `json:"deleted_files"`
	TotalChanges   int        `json:"total_changes"`
	LastAnalysis   *time.Time `json:"last_analysis,omitempty"`
	Recommendation string     `json:"recommendation"`
	// Baseline names the record file the check compared against.
	Baseline string `json:"baseline,omitempty"`
}

// Summary returns a one-line description of the report.
func (r *Report) Summary() string {
	switch r.Reason {
	case ReasonNoData:
		return "no previous analysis"
	case ReasonNoHashTracking:
		return "previous analysis has no file hashes"
	case ReasonMissingFile:
		return "stored analysis file is missing"
	case ReasonUpToDate:
		return "fresh"
	default:
		return fmt.Sprintf("%d changed, %d new, %d deleted",
			len(r.ChangedFiles), len(r.NewFiles), len(r.DeletedFiles))
	}
}

// NoData returns the report for a path that has never been analyzed.
func NoData() *Report {
	return &Report{
		Reason:         ReasonNoData,
		ChangedFiles:   []string{},
		NewFiles:       []string{},
		DeletedFiles:   []string{},
		Recommendation: RecommendFirstRun,
	}
}

// MissingFile returns the report for a baseline whose record file is gone.
func MissingFile(entry *storage.IndexEntry) *Report {
	ts := entry.Timestamp
	return &Report{
		Stale:          true,
		Reason:         ReasonMissingFile,
		ChangedFiles:   []string{},
		NewFiles:       []string{},
		DeletedFiles:   []string{},
		LastAnalysis:   &ts,
		Recommendation: RecommendRestore,
		Baseline:       entry.File,
	}
}

// Compare classifies the difference between a baseline manifest and the
// current one. A nil baseline means the baseline was recorded without hash
// tracking and is always stale.
func Compare(baseline, current manifest.Manifest) *Report {
	if baseline == nil {
		return &Report{
			Stale:          true,
			Reason:         ReasonNoHashTracking,
			ChangedFiles:   []string{},
			NewFiles:       []string{},
			DeletedFiles:   []string{},
			Recommendation: RecommendEnableHashes,
		}
	}

	changes := manifest.Diff(baseline, current)
	r := &Report{
		Stale:        !changes.Empty(),
		ChangedFiles: changes.Changed,
		NewFiles:     changes.New,
		DeletedFiles: changes.Deleted,
		TotalChanges: changes.Total(),
	}
	if r.Stale {
		r.Reason = ReasonChangesDetected
		r.Recommendation = RecommendReanalyze
	} else {
		r.Reason = ReasonUpToDate
		r.Recommendation = RecommendCurrent
	}
	return r
}

// RecordSource provides stored analyses to compare against. storage.Backend
// satisfies it.
type RecordSource interface {
	GetAll(ctx context.Context) ([]storage.IndexEntry, error)
	Load(ctx context.Context, file string) (*storage.Record, error)
}

// Detector checks paths against the most recent stored analysis of the same
// path.
type Detector struct {
	source  RecordSource
	builder *manifest.Builder
	logger  *slog.Logger
}

// NewDetector creates a Detector. A nil builder uses the default allow-list.
func NewDetector(source RecordSource, builder *manifest.Builder, logger *slog.Logger) *Detector {
	if builder == nil {
		builder = manifest.NewBuilder()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Detector{source: source, builder: builder, logger: logger}
}

// Check compares the current content of path with its latest stored analysis.
func (d *Detector) Check(ctx context.Context, path string) (*Report, error) {
	abs, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	entry, rec, err := Latest(ctx, d.source, abs)
	if entry != nil && errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("baseline record file missing", "path", abs, "baseline", entry.File)
		return MissingFile(entry), nil
	}
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return NoData(), nil
	}

	var report *Report
	if rec.FileHashes == nil {
		report = Compare(nil, nil)
	} else {
		current, err := d.builder.Build(abs)
		if err != nil {
			return nil, fmt.Errorf("build manifest: %w", err)
		}
		report = Compare(rec.FileHashes, current)
	}

	ts := entry.Timestamp
	report.LastAnalysis = &ts
	report.Baseline = entry.File
	d.logger.Debug("staleness check", "path", abs, "baseline", entry.File, "stale", report.Stale, "changes", report.TotalChanges)
	return report, nil
}

// Latest returns the newest index entry whose originating path equals path,
// with its full record. It returns nil, nil, nil when there is none. If the
// record cannot be loaded the entry is still returned alongside the error.
func Latest(ctx context.Context, source RecordSource, path string) (*storage.IndexEntry, *storage.Record, error) {
	entries, err := source.GetAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list analyses: %w", err)
	}

	var latest *storage.IndexEntry
	for i := range entries {
		e := &entries[i]
		if filepath.Clean(e.Path) != path {
			continue
		}
		if latest == nil || !e.Timestamp.Before(latest.Timestamp) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil, nil
	}

	rec, err := source.Load(ctx, latest.File)
	if err != nil {
		return latest, nil, fmt.Errorf("load baseline: %w", err)
	}
	return latest, rec, nil
}

// NormalizePath returns the cleaned absolute form used to match stored paths.
func NormalizePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
