package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// maxEmbedChars bounds the text sent to the embedder per record.
const maxEmbedChars = 8000

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Neighbor is one nearest-neighbour hit.
type Neighbor struct {
	ID       string
	Distance float64
}

// VectorIndex stores vectors by id and answers nearest-neighbour queries. It
// does not support enumeration; listing goes through the record index.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vec []float32) error
	Nearest(ctx context.Context, vec []float32, limit int) ([]Neighbor, error)
	Close() error
}

// VectorBackend embeds every stored record and ranks searches by distance. It
// keeps the same record files and index as the keyword backend.
type VectorBackend struct {
	files    *recordDir
	embedder Embedder
	index    VectorIndex
	logger   *slog.Logger
}

// NewVectorBackend opens a vector backend in dir over the given collaborators.
func NewVectorBackend(dir string, embedder Embedder, index VectorIndex, logger *slog.Logger) (*VectorBackend, error) {
	if embedder == nil {
		return nil, errors.New("no embedder")
	}
	if index == nil {
		return nil, errors.New("no vector index")
	}
	files, err := openRecordDir(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &VectorBackend{files: files, embedder: embedder, index: index, logger: logger}, nil
}

// Store implements Backend. A record whose embedding fails is still stored,
// marked as having no vector.
func (v *VectorBackend) Store(ctx context.Context, rec *Record) error {
	prepare(rec, BackendVector)
	file, ts := v.files.allocate(rec.Timestamp)
	rec.Timestamp = ts
	rec.File = file

	embedded := true
	vec, err := v.embedder.Embed(ctx, embeddingText(rec))
	if err == nil {
		err = v.index.Upsert(ctx, file, vec)
	}
	if err != nil {
		v.logger.Warn("record stored without embedding", "file", file, "error", err)
		embedded = false
	}

	if err := v.files.write(file, rec, newIndexEntry(file, rec, embedded)); err != nil {
		return err
	}
	v.logger.Debug("stored analysis", "file", file, "path", rec.Path, "embedded", embedded)
	return nil
}

// Search implements Backend.
func (v *VectorBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	vec, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	neighbors, err := v.index.Nearest(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbours: %w", err)
	}

	index, err := v.files.readIndex()
	if err != nil {
		return nil, err
	}
	byFile := make(map[string]IndexEntry, len(index))
	for _, e := range index {
		byFile[e.File] = e
	}

	results := make([]SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		entry, ok := byFile[n.ID]
		if !ok {
			continue
		}
		rec, err := v.files.load(n.ID)
		if err != nil {
			v.logger.Warn("load record for search hit", "file", n.ID, "error", err)
		}
		results = append(results, SearchResult{
			Entry:  entry,
			Record: rec,
			Score:  DistanceScore(n.Distance),
			Method: MethodSemantic,
		})
	}
	return results, nil
}

// GetAll implements Backend.
func (v *VectorBackend) GetAll(ctx context.Context) ([]IndexEntry, error) {
	return v.files.readIndex()
}

// Load implements Backend.
func (v *VectorBackend) Load(ctx context.Context, file string) (*Record, error) {
	return v.files.load(file)
}

// Name implements Backend.
func (v *VectorBackend) Name() string {
	return BackendVector
}

// Close implements Backend.
func (v *VectorBackend) Close() error {
	return v.index.Close()
}

// DistanceScore maps a nearest-neighbour distance onto a 0..100 score.
func DistanceScore(d float64) float64 {
	return max(0, 100-10*d)
}

func embeddingText(rec *Record) string {
	var b strings.Builder
	b.WriteString(rec.Query)
	if rec.Focus != "" {
		b.WriteString("\n")
		b.WriteString(rec.Focus)
	}
	if rec.Result != nil && rec.Result.Content != "" {
		b.WriteString("\n")
		b.WriteString(rec.Result.Content)
	}
	text := b.String()
	if len(text) > maxEmbedChars {
		text = strings.ToValidUTF8(text[:maxEmbedChars], "")
	}
	return text
}

var _ Backend = (*VectorBackend)(nil)
