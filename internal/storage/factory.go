package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// VectorIndexFileName is the SQLite vector index inside the storage directory.
const VectorIndexFileName = "vectors.db"

// initTimeout bounds the embedder and index reachability checks.
const initTimeout = 5 * time.Second

// Config selects and configures a backend.
type Config struct {
	// Dir holds the index and record files.
	Dir string
	// VectorEnabled prefers the vector backend when its collaborators work.
	VectorEnabled bool
	// VectorIndexPath overrides the default <Dir>/vectors.db.
	VectorIndexPath string
	// Qdrant is tried before the SQLite vector index when its address is set.
	Qdrant QdrantConfig
	// TextBackend picks the non-vector backend: BackendKeyword (default) or
	// BackendBM25.
	TextBackend string
}

// NewBackend returns the vector backend when it is enabled and initializes
// cleanly, and the text backend named by cfg.TextBackend otherwise. A BM25
// backend that cannot open falls back to keyword. Initialization failures
// are logged as *InitError and absorbed.
//
// If even the keyword backend cannot open its directory the failure is logged
// and a backend is still returned; its operations report the underlying
// error.
func NewBackend(ctx context.Context, cfg Config, embedder Embedder, logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.VectorEnabled {
		b, err := newVector(ctx, cfg, embedder, logger)
		if err == nil {
			logger.Debug("using vector storage backend", "dir", cfg.Dir)
			return b
		}
		initErr := &InitError{Backend: BackendVector, Err: err}
		logger.Info("vector storage unavailable, using text search", "error", initErr)
	}

	if cfg.TextBackend == BackendBM25 {
		b, err := NewBM25Backend(cfg.Dir, logger)
		if err == nil {
			logger.Debug("using bm25 storage backend", "dir", cfg.Dir)
			return b
		}
		logger.Info("bm25 storage unavailable, using keyword search", "error", &InitError{Backend: BackendBM25, Err: err})
	}

	k, err := NewKeywordBackend(cfg.Dir, logger)
	if err != nil {
		logger.Error("keyword storage unavailable", "error", &InitError{Backend: BackendKeyword, Err: err})
		return &brokenBackend{err: err}
	}
	return k
}

func newVector(ctx context.Context, cfg Config, embedder Embedder, logger *slog.Logger) (Backend, error) {
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	sample, err := embedder.Embed(initCtx, "ping")
	if err != nil {
		return nil, fmt.Errorf("embedder not responding: %w", err)
	}

	index, err := openVectorIndex(initCtx, cfg, len(sample), logger)
	if err != nil {
		return nil, err
	}

	b, err := NewVectorBackend(cfg.Dir, embedder, index, logger)
	if err != nil {
		index.Close()
		return nil, err
	}
	return b, nil
}

// openVectorIndex prefers Qdrant and falls back to the SQLite index in Dir.
func openVectorIndex(ctx context.Context, cfg Config, dim int, logger *slog.Logger) (VectorIndex, error) {
	if cfg.Qdrant.Address != "" {
		q, err := OpenQdrantVectorIndex(ctx, cfg.Qdrant, dim)
		if err == nil {
			logger.Debug("using qdrant vector index", "address", cfg.Qdrant.Address, "collection", q.Collection())
			return q, nil
		}
		logger.Info("qdrant unavailable, using sqlite vector index", "error", &InitError{Backend: BackendQdrant, Err: err})
	}

	path := cfg.VectorIndexPath
	if path == "" {
		path = filepath.Join(cfg.Dir, VectorIndexFileName)
	}
	return OpenSQLiteVectorIndex(path)
}

// brokenBackend stands in when no directory could be opened.
type brokenBackend struct {
	err error
}

func (b *brokenBackend) Store(context.Context, *Record) error { return b.err }
func (b *brokenBackend) Search(context.Context, string, int) ([]SearchResult, error) {
	return nil, b.err
}
func (b *brokenBackend) GetAll(context.Context) ([]IndexEntry, error) { return nil, b.err }
func (b *brokenBackend) Load(context.Context, string) (*Record, error) { return nil, b.err }
func (b *brokenBackend) Name() string { return BackendKeyword }
func (b *brokenBackend) Close() error { return nil }
