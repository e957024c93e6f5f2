package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteVectorIndex keeps vectors in a SQLite table next to the records. It
// is the offline index used when no Qdrant server is reachable, and answers
// nearest-neighbour queries by scanning every row.
type SQLiteVectorIndex struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenSQLiteVectorIndex opens or creates the index database at path.
func OpenSQLiteVectorIndex(path string) (*SQLiteVectorIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS vectors (
			id TEXT PRIMARY KEY,
			dim INTEGER NOT NULL,
			vector TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create vectors table: %w", err)
	}

	return &SQLiteVectorIndex{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteVectorIndex) Path() string {
	return s.path
}

// Upsert implements VectorIndex.
func (s *SQLiteVectorIndex) Upsert(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal vector: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO vectors (id, dim, vector, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET dim = excluded.dim, vector = excluded.vector, updated_at = excluded.updated_at
	`, id, len(vec), string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

// Nearest implements VectorIndex. Rows whose dimension differs from vec are
// ignored.
func (s *SQLiteVectorIndex) Nearest(ctx context.Context, vec []float32, limit int) ([]Neighbor, error) {
	s.mu.RLock()
	rows, err := s.conn.QueryContext(ctx, `SELECT id, vector FROM vectors WHERE dim = ?`, len(vec))
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		var stored []float32
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			continue
		}
		neighbors = append(neighbors, Neighbor{ID: id, Distance: euclidean(vec, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

// Count returns the number of stored vectors.
func (s *SQLiteVectorIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

// Close implements VectorIndex.
func (s *SQLiteVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ VectorIndex = (*SQLiteVectorIndex)(nil)
