// Package storage persists finished analyses and searches them.
//
// Every backend writes the same on-disk layout under its directory: an
// index.json holding ordered summaries, and one analysis_<timestamp>.json per
// record. The keyword backend ranks records by word overlap and the bm25
// backend ranks them through a SQLite FTS5 index. The vector backend embeds
// each record into Qdrant, or a local SQLite index when Qdrant is not
// reachable, and ranks by nearest-neighbour distance. NewBackend picks the
// best one available.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/rlm/internal/manifest"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// SchemaVersion is written into every record.
const SchemaVersion = "3.0"

// Backend names, recorded in each record and index entry.
const (
	BackendKeyword = "keyword"
	BackendBM25    = "bm25"
	BackendVector  = "vector"
)

// BackendQdrant names the Qdrant vector index in InitError.
const BackendQdrant = "qdrant"

// Search methods reported on results.
const (
	MethodKeyword  = "keyword"
	MethodBM25     = "bm25"
	MethodSemantic = "semantic"
)

// Record is one immutable, fully stored analysis.
type Record struct {
	Query     string                 `json:"query"`
	Focus     string                 `json:"focus"`
	Timestamp time.Time              `json:"timestamp"`
	Result    *models.AnalysisResult `json:"result"`
	Stats     models.Stats           `json:"stats"`
	Path      string                 `json:"path"`
	// FileHashes is the manifest captured at analysis time. Nil marks a
	// record written without hash tracking.
	FileHashes manifest.Manifest `json:"file_hashes"`
	Version    string            `json:"version"`
	Backend    string            `json:"storage_backend"`

	// File is set by Store to the record's file name.
	File string `json:"-"`
}

// IndexEntry summarizes a Record for listing.
type IndexEntry struct {
	Timestamp          time.Time `json:"timestamp"`
	Query              string    `json:"query"`
	Focus              string    `json:"focus"`
	File               string    `json:"file"`
	Path               string    `json:"path"`
	FilesTracked       int       `json:"files_tracked"`
	HasHashTracking    bool      `json:"has_hash_tracking"`
	HasVectorEmbedding bool      `json:"has_vector_embedding"`
	StorageBackend     string    `json:"storage_backend"`
}

// SearchResult is a ranked hit.
type SearchResult struct {
	Entry  IndexEntry `json:"entry"`
	Record *Record    `json:"record"`
	Score  float64    `json:"score"`
	Method string     `json:"search_method"`
}

// Backend is the contract shared by the keyword, bm25 and vector variants.
type Backend interface {
	// Store appends a full record and its index summary.
	Store(ctx context.Context, rec *Record) error
	// Search returns at most limit records ranked by descending score.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	// GetAll returns every index summary in insertion order.
	GetAll(ctx context.Context) ([]IndexEntry, error)
	// Load reads the full record named by an index entry's File.
	Load(ctx context.Context, file string) (*Record, error)
	// Name identifies the variant.
	Name() string
	// Close releases resources held by the backend.
	Close() error
}

// InitError reports why the preferred backend could not be initialized. The
// factory logs it and falls back; it never reaches callers of NewBackend.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s backend: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
