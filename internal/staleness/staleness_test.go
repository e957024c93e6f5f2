package staleness

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ShayCichocki/rlm/internal/manifest"
	"github.com/ShayCichocki/rlm/internal/storage"
	"github.com/ShayCichocki/rlm/pkg/models"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name        string
		baseline    manifest.Manifest
		current     manifest.Manifest
		wantStale   bool
		wantReason  string
		wantChanged []string
		wantNew     []string
		wantDeleted []string
		wantRec     string
	}{
		{
			name:        "single change",
			baseline:    manifest.Manifest{"a.py": "h1", "b.py": "h2"},
			current:     manifest.Manifest{"a.py": "h1", "b.py": "h3"},
			wantStale:   true,
			wantReason:  ReasonChangesDetected,
			wantChanged: []string{"b.py"},
			wantNew:     []string{},
			wantDeleted: []string{},
			wantRec:     RecommendReanalyze,
		},
		{
			name:        "no change",
			baseline:    manifest.Manifest{"a.py": "h1", "b.py": "h2"},
			current:     manifest.Manifest{"a.py": "h1", "b.py": "h2"},
			wantStale:   false,
			wantReason:  ReasonUpToDate,
			wantChanged: []string{},
			wantNew:     []string{},
			wantDeleted: []string{},
			wantRec:     RecommendCurrent,
		},
		{
			name:        "added and removed",
			baseline:    manifest.Manifest{"a.py": "h1", "old.py": "h2"},
			current:     manifest.Manifest{"a.py": "h1", "new.py": "h4"},
			wantStale:   true,
			wantReason:  ReasonChangesDetected,
			wantChanged: []string{},
			wantNew:     []string{"new.py"},
			wantDeleted: []string{"old.py"},
			wantRec:     RecommendReanalyze,
		},
		{
			name:        "no hash tracking",
			baseline:    nil,
			current:     manifest.Manifest{"a.py": "h1"},
			wantStale:   true,
			wantReason:  ReasonNoHashTracking,
			wantChanged: []string{},
			wantNew:     []string{},
			wantDeleted: []string{},
			wantRec:     RecommendEnableHashes,
		},
		{
			name:        "empty but tracked baseline",
			baseline:    manifest.Manifest{},
			current:     manifest.Manifest{},
			wantStale:   false,
			wantReason:  ReasonUpToDate,
			wantChanged: []string{},
			wantNew:     []string{},
			wantDeleted: []string{},
			wantRec:     RecommendCurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compare(tt.baseline, tt.current)
			if r.Stale != tt.wantStale {
				t.Errorf("Stale = %v, want %v", r.Stale, tt.wantStale)
			}
			if r.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", r.Reason, tt.wantReason)
			}
			if !reflect.DeepEqual(r.ChangedFiles, tt.wantChanged) {
				t.Errorf("ChangedFiles = %v, want %v", r.ChangedFiles, tt.wantChanged)
			}
			if !reflect.DeepEqual(r.NewFiles, tt.wantNew) {
				t.Errorf("NewFiles = %v, want %v", r.NewFiles, tt.wantNew)
			}
			if !reflect.DeepEqual(r.DeletedFiles, tt.wantDeleted) {
				t.Errorf("DeletedFiles = %v, want %v", r.DeletedFiles, tt.wantDeleted)
			}
			if r.TotalChanges != len(tt.wantChanged)+len(tt.wantNew)+len(tt.wantDeleted) {
				t.Errorf("TotalChanges = %d", r.TotalChanges)
			}
			if r.Recommendation != tt.wantRec {
				t.Errorf("Recommendation = %q, want %q", r.Recommendation, tt.wantRec)
			}
		})
	}
}

func TestNoData(t *testing.T) {
	r := NoData()
	if r.Stale {
		t.Error("Stale = true, want false")
	}
	if r.Reason != ReasonNoData {
		t.Errorf("Reason = %q, want %q", r.Reason, ReasonNoData)
	}
	if r.Summary() != "no previous analysis" {
		t.Errorf("Summary() = %q", r.Summary())
	}
}

type detectorFixture struct {
	root     string
	backend  *storage.KeywordBackend
	detector *Detector
}

func setupDetector(t *testing.T) *detectorFixture {
	t.Helper()
	root := t.TempDir()
	backend, err := storage.NewKeywordBackend(filepath.Join(root, ".rlm"), nil)
	if err != nil {
		t.Fatalf("NewKeywordBackend: %v", err)
	}
	writeSource(t, filepath.Join(root, "a.py"), "print('a')")
	writeSource(t, filepath.Join(root, "b.py"), "print('b')")
	return &detectorFixture{
		root:     root,
		backend:  backend,
		detector: NewDetector(backend, nil, nil),
	}
}

func writeSource(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func (f *detectorFixture) storeBaseline(t *testing.T, path string, hashes manifest.Manifest, ts time.Time) string {
	t.Helper()
	rec := &storage.Record{
		Query:      "q",
		Timestamp:  ts,
		Result:     &models.AnalysisResult{Content: "r"},
		Path:       path,
		FileHashes: hashes,
	}
	if err := f.backend.Store(context.Background(), rec); err != nil {
		t.Fatalf("Store: %v", err)
	}
	return rec.File
}

func TestDetector_NoBaseline(t *testing.T) {
	f := setupDetector(t)
	r, err := f.detector.Check(context.Background(), f.root)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if r.Stale || r.Reason != ReasonNoData {
		t.Errorf("report = %+v, want not stale with no_data", r)
	}
}

func TestDetector_UpToDateThenChanged(t *testing.T) {
	ctx := context.Background()
	f := setupDetector(t)

	current, err := manifest.NewBuilder().Build(f.root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f.storeBaseline(t, f.root, current, time.Now())

	r, err := f.detector.Check(ctx, f.root)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if r.Stale {
		t.Errorf("Stale = true right after baseline: %+v", r)
	}
	if r.Recommendation != RecommendCurrent {
		t.Errorf("Recommendation = %q, want %q", r.Recommendation, RecommendCurrent)
	}
	if r.LastAnalysis == nil || r.Baseline == "" {
		t.Errorf("baseline details missing: %+v", r)
	}

	writeSource(t, filepath.Join(f.root, "b.py"), "print('changed')")
	r, err = f.detector.Check(ctx, f.root)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !r.Stale || !reflect.DeepEqual(r.ChangedFiles, []string{"b.py"}) {
		t.Errorf("report = %+v, want b.py changed", r)
	}
}

func TestDetector_UsesLatestRecordForPath(t *testing.T) {
	ctx := context.Background()
	f := setupDetector(t)
	now := time.Now()

	current, err := manifest.NewBuilder().Build(f.root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f.storeBaseline(t, f.root, manifest.Manifest{"a.py": "stale"}, now.Add(-time.Hour))
	f.storeBaseline(t, f.root, current, now)
	f.storeBaseline(t, "/some/other/path", nil, now.Add(time.Hour))

	r, err := f.detector.Check(ctx, f.root)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if r.Stale {
		t.Errorf("report = %+v, want fresh against the newest matching record", r)
	}
}

func TestDetector_NoHashTracking(t *testing.T) {
	f := setupDetector(t)
	f.storeBaseline(t, f.root, nil, time.Now())

	r, err := f.detector.Check(context.Background(), f.root)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !r.Stale || r.Reason != ReasonNoHashTracking {
		t.Errorf("report = %+v, want stale with no_hash_tracking", r)
	}
	if r.Recommendation != RecommendEnableHashes {
		t.Errorf("Recommendation = %q, want %q", r.Recommendation, RecommendEnableHashes)
	}
}

func TestDetector_MissingRecordFile(t *testing.T) {
	f := setupDetector(t)
	ts := time.Now()
	file := f.storeBaseline(t, f.root, manifest.Manifest{"a.py": "h"}, ts)
	if err := os.Remove(filepath.Join(f.root, ".rlm", file)); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	r, err := f.detector.Check(context.Background(), f.root)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !r.Stale || r.Reason != ReasonMissingFile {
		t.Errorf("report = %+v, want stale with missing_file", r)
	}
	if r.Baseline != file || r.LastAnalysis == nil || !r.LastAnalysis.Equal(ts) {
		t.Errorf("baseline = %q at %v, want %q at %v", r.Baseline, r.LastAnalysis, file, ts)
	}
	if r.Recommendation != RecommendRestore {
		t.Errorf("Recommendation = %q, want %q", r.Recommendation, RecommendRestore)
	}
	if r.Summary() != "stored analysis file is missing" {
		t.Errorf("Summary() = %q", r.Summary())
	}
}

func TestDetector_UnreadableRecordFails(t *testing.T) {
	f := setupDetector(t)
	file := f.storeBaseline(t, f.root, manifest.Manifest{"a.py": "h"}, time.Now())
	writeSource(t, filepath.Join(f.root, ".rlm", file), "{not json")

	if _, err := f.detector.Check(context.Background(), f.root); err == nil {
		t.Error("Check on a corrupt record = nil error, want error")
	}
}

func TestWatcher_ReportsChanges(t *testing.T) {
	f := setupDetector(t)
	current, err := manifest.NewBuilder().Build(f.root)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f.storeBaseline(t, f.root, current, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reports := make(chan *Report, 16)
	done := make(chan error, 1)
	w := NewWatcher(f.detector, f.root, 50*time.Millisecond)
	go func() {
		done <- w.Watch(ctx, func(r *Report) { reports <- r })
	}()

	select {
	case r := <-reports:
		if r.Stale {
			t.Fatalf("initial report stale: %+v", r)
		}
	case <-ctx.Done():
		t.Fatal("no initial report")
	}

	writeSource(t, filepath.Join(f.root, "c.py"), "print('c')")

	for {
		select {
		case r := <-reports:
			if r.Stale && reflect.DeepEqual(r.NewFiles, []string{"c.py"}) {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
		case <-ctx.Done():
			t.Fatal("no stale report after change")
		}
	}
}
