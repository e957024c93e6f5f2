package storage

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// KeywordBackend ranks records by literal and word overlap with the query.
type KeywordBackend struct {
	files  *recordDir
	logger *slog.Logger
}

// NewKeywordBackend opens (creating if needed) a keyword backend in dir.
func NewKeywordBackend(dir string, logger *slog.Logger) (*KeywordBackend, error) {
	files, err := openRecordDir(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KeywordBackend{files: files, logger: logger}, nil
}

// Store implements Backend.
func (k *KeywordBackend) Store(ctx context.Context, rec *Record) error {
	prepare(rec, BackendKeyword)
	file, ts := k.files.allocate(rec.Timestamp)
	rec.Timestamp = ts
	rec.File = file
	if err := k.files.write(file, rec, newIndexEntry(file, rec, false)); err != nil {
		return err
	}
	k.logger.Debug("stored analysis", "file", file, "path", rec.Path)
	return nil
}

// Search implements Backend.
func (k *KeywordBackend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	index, err := k.files.readIndex()
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0)
	for _, entry := range index {
		score := KeywordScore(query, entry.Query, entry.Focus)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			Entry:  entry,
			Score:  score,
			Method: MethodKeyword,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	for i := range results {
		rec, err := k.files.load(results[i].Entry.File)
		if err != nil {
			// The summary is still useful without the payload.
			k.logger.Warn("load record for search hit", "file", results[i].Entry.File, "error", err)
			continue
		}
		results[i].Record = rec
	}
	return results, nil
}

// GetAll implements Backend.
func (k *KeywordBackend) GetAll(ctx context.Context) ([]IndexEntry, error) {
	return k.files.readIndex()
}

// Load implements Backend.
func (k *KeywordBackend) Load(ctx context.Context, file string) (*Record, error) {
	return k.files.load(file)
}

// Name implements Backend.
func (k *KeywordBackend) Name() string {
	return BackendKeyword
}

// Close implements Backend.
func (k *KeywordBackend) Close() error {
	return nil
}

// KeywordScore scores a stored query and focus against a search query,
// case-insensitively: 10 if the query occurs in the stored query, plus 2 per
// distinct whitespace-separated word the two queries share, plus 5 if the
// query occurs in the focus.
func KeywordScore(query, storedQuery, focus string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	stored := strings.ToLower(storedQuery)

	var score float64
	if strings.Contains(stored, q) {
		score += 10
	}

	queryWords := make(map[string]struct{})
	for _, w := range strings.Fields(q) {
		queryWords[w] = struct{}{}
	}
	shared := make(map[string]struct{})
	for _, w := range strings.Fields(stored) {
		if _, ok := queryWords[w]; ok {
			shared[w] = struct{}{}
		}
	}
	score += 2 * float64(len(shared))

	if focus != "" && strings.Contains(strings.ToLower(focus), q) {
		score += 5
	}
	return score
}

var _ Backend = (*KeywordBackend)(nil)
