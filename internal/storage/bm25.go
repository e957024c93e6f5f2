package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	_ "modernc.org/sqlite"
)

// BM25IndexFileName is the FTS5 database inside the storage directory.
const BM25IndexFileName = "bm25.db"

// bm25ScoreScale maps raw BM25 scores onto the 0..100 range.
const bm25ScoreScale = 10

// BM25Backend ranks records with Okapi BM25 over their query, focus and
// result text, using SQLite FTS5. Record files are shared with the other
// backends; the FTS table is a derived index rebuilt from them on open.
type BM25Backend struct {
	files  *recordDir
	conn   *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// NewBM25Backend opens (creating if needed) a bm25 backend in dir and indexes
// any stored record the FTS table does not know yet.
func NewBM25Backend(dir string, logger *slog.Logger) (*BM25Backend, error) {
	files, err := openRecordDir(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := sql.Open("sqlite", filepath.Join(dir, BM25IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("open bm25 index: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			file UNINDEXED,
			query,
			focus,
			content,
			tokenize='unicode61'
		)
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create fts table: %w", err)
	}

	b := &BM25Backend{files: files, conn: conn, logger: logger}
	if err := b.sync(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// sync indexes records present in index.json but missing from the FTS table.
func (b *BM25Backend) sync(ctx context.Context) error {
	index, err := b.files.readIndex()
	if err != nil {
		return err
	}
	if len(index) == 0 {
		return nil
	}

	known := make(map[string]struct{})
	rows, err := b.conn.QueryContext(ctx, `SELECT file FROM records_fts`)
	if err != nil {
		return fmt.Errorf("list fts rows: %w", err)
	}
	for rows.Next() {
		var file string
		if err := rows.Scan(&file); err != nil {
			rows.Close()
			return fmt.Errorf("scan fts row: %w", err)
		}
		known[file] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate fts rows: %w", err)
	}

	added := 0
	for _, entry := range index {
		if _, ok := known[entry.File]; ok {
			continue
		}
		rec, err := b.files.load(entry.File)
		if err != nil {
			b.logger.Warn("skip unreadable record in bm25 index", "file", entry.File, "error", err)
			continue
		}
		if err := b.insert(ctx, entry.File, rec); err != nil {
			return err
		}
		added++
	}
	if added > 0 {
		b.logger.Debug("indexed records for bm25", "count", added)
	}
	return nil
}

func (b *BM25Backend) insert(ctx context.Context, file string, rec *Record) error {
	content := ""
	if rec.Result != nil {
		content = rec.Result.Content
	}
	_, err := b.conn.ExecContext(ctx,
		`INSERT INTO records_fts (file, query, focus, content) VALUES (?, ?, ?, ?)`,
		file, rec.Query, rec.Focus, content)
	if err != nil {
		return fmt.Errorf("index record %s: %w", file, err)
	}
	return nil
}

// Store implements Backend. A record whose FTS insert fails is still stored
// and gets indexed on the next open.
func (b *BM25Backend) Store(ctx context.Context, rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prepare(rec, BackendBM25)
	file, ts := b.files.allocate(rec.Timestamp)
	rec.Timestamp = ts
	rec.File = file
	if err := b.files.write(file, rec, newIndexEntry(file, rec, false)); err != nil {
		return err
	}
	if err := b.insert(ctx, file, rec); err != nil {
		b.logger.Warn("record stored without bm25 index row", "file", file, "error", err)
	}
	b.logger.Debug("stored analysis", "file", file, "path", rec.Path)
	return nil
}

// Search implements Backend. Hits with a non-positive score are dropped.
func (b *BM25Backend) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	match := matchExpression(tokenize(query))
	if match == "" {
		return []SearchResult{}, nil
	}

	index, err := b.files.readIndex()
	if err != nil {
		return nil, err
	}
	byFile := make(map[string]IndexEntry, len(index))
	for _, e := range index {
		byFile[e.File] = e
	}

	b.mu.Lock()
	rows, err := b.conn.QueryContext(ctx, `
		SELECT file, bm25(records_fts)
		FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY bm25(records_fts)
		LIMIT ?
	`, match, limit)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("bm25 query: %w", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0)
	for rows.Next() {
		var file string
		var rank float64
		if err := rows.Scan(&file, &rank); err != nil {
			return nil, fmt.Errorf("scan bm25 row: %w", err)
		}
		// FTS5 reports BM25 negated so that ascending order ranks best first.
		score := BM25Score(-rank)
		if score <= 0 {
			continue
		}
		entry, ok := byFile[file]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Entry:  entry,
			Score:  score,
			Method: MethodBM25,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bm25 rows: %w", err)
	}

	for i := range results {
		rec, err := b.files.load(results[i].Entry.File)
		if err != nil {
			b.logger.Warn("load record for search hit", "file", results[i].Entry.File, "error", err)
			continue
		}
		results[i].Record = rec
	}
	return results, nil
}

// GetAll implements Backend.
func (b *BM25Backend) GetAll(ctx context.Context) ([]IndexEntry, error) {
	return b.files.readIndex()
}

// Load implements Backend.
func (b *BM25Backend) Load(ctx context.Context, file string) (*Record, error) {
	return b.files.load(file)
}

// Name implements Backend.
func (b *BM25Backend) Name() string {
	return BackendBM25
}

// Close implements Backend.
func (b *BM25Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close()
}

// BM25Score maps a raw BM25 score onto 0..100.
func BM25Score(raw float64) float64 {
	return min(100, max(0, raw*bm25ScoreScale))
}

// tokenize lowercases text and splits it on anything that is not a letter or
// digit. Single-character tokens are dropped.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// matchExpression ORs quoted tokens so FTS5 operators in user input are
// treated as plain words.
func matchExpression(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

var _ Backend = (*BM25Backend)(nil)
