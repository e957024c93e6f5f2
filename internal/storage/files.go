package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/rlm/internal/fsutil"
)

const (
	indexFileName    = "index.json"
	recordFilePrefix = "analysis_"
	recordTimeLayout = "20060102T150405.000000000Z"
)

// recordDir manages the index and record files shared by every backend.
type recordDir struct {
	dir string
}

func openRecordDir(dir string) (*recordDir, error) {
	if dir == "" {
		return nil, errors.New("storage directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &recordDir{dir: dir}, nil
}

// allocate picks a record file name for ts that is not yet taken. Records
// written within the same nanosecond are nudged forward.
func (d *recordDir) allocate(ts time.Time) (string, time.Time) {
	ts = ts.UTC()
	for {
		name := recordFilePrefix + ts.Format(recordTimeLayout) + ".json"
		if _, err := os.Stat(filepath.Join(d.dir, name)); errors.Is(err, os.ErrNotExist) {
			return name, ts
		}
		ts = ts.Add(time.Nanosecond)
	}
}

// write stores rec under file and appends entry to the index.
func (d *recordDir) write(file string, rec *Record, entry IndexEntry) error {
	if err := fsutil.WriteJSONAtomic(filepath.Join(d.dir, file), rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	index, err := d.readIndex()
	if err != nil {
		return err
	}
	index = append(index, entry)
	if err := fsutil.WriteJSONAtomic(filepath.Join(d.dir, indexFileName), index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// readIndex returns the index, or an empty slice if none has been written.
func (d *recordDir) readIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(d.dir, indexFileName))
	if errors.Is(err, os.ErrNotExist) {
		return []IndexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var index []IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if index == nil {
		index = []IndexEntry{}
	}
	return index, nil
}

func (d *recordDir) load(file string) (*Record, error) {
	if file == "" || file != filepath.Base(file) || !strings.HasPrefix(file, recordFilePrefix) {
		return nil, fmt.Errorf("invalid record file name %q", file)
	}

	data, err := os.ReadFile(filepath.Join(d.dir, file))
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", file, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", file, err)
	}
	rec.File = file
	return &rec, nil
}

// newIndexEntry summarizes rec stored under file.
func newIndexEntry(file string, rec *Record, embedded bool) IndexEntry {
	return IndexEntry{
		Timestamp:          rec.Timestamp,
		Query:              rec.Query,
		Focus:              rec.Focus,
		File:               file,
		Path:               rec.Path,
		FilesTracked:       len(rec.FileHashes),
		HasHashTracking:    rec.FileHashes != nil,
		HasVectorEmbedding: embedded,
		StorageBackend:     rec.Backend,
	}
}

// prepare fills the fields every backend sets on store.
func prepare(rec *Record, backend string) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Version = SchemaVersion
	rec.Backend = backend
}
