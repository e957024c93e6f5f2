// Package cache stores results of individual tasks, keyed by the task's
// identity, so an identical task is not dispatched twice within the TTL.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/rlm/internal/fsutil"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// DirName is the cache directory inside the working directory.
const DirName = ".rlm_cache"

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// Entry is the on-disk form of a cached result.
type Entry struct {
	Key      string                 `json:"key"`
	Role     models.Role            `json:"role"`
	Result   *models.AnalysisResult `json:"result"`
	StoredAt time.Time              `json:"stored_at"`
}

// CacheIOError reports a failure to read, parse or write a cache entry. The
// orchestrator treats it as a miss.
type CacheIOError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheIOError) Unwrap() error {
	return e.Err
}

// Key returns the hex SHA-256 of role|description|context, with the context
// serialized as JSON. encoding/json writes map keys in sorted order, so the
// key does not depend on how the context was built.
func Key(task models.Task) string {
	ctx := task.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	ctxJSON, err := json.Marshal(ctx)
	if err != nil {
		// fmt also prints maps with sorted keys.
		ctxJSON = []byte(fmt.Sprintf("%v", ctx))
	}

	sum := sha256.Sum256([]byte(string(task.Role) + "|" + task.Description + "|" + string(ctxJSON)))
	return hex.EncodeToString(sum[:])
}

// Config configures a Manager.
type Config struct {
	// WorkDir holds the .rlm_cache directory.
	WorkDir string
	// Enabled turns the cache on. A disabled cache always misses and never
	// writes.
	Enabled bool
	// TTL is the maximum age of a hit.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager is a file-backed, TTL-bounded result cache.
type Manager struct {
	dir     string
	enabled bool
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		dir:     filepath.Join(cfg.WorkDir, DirName),
		enabled: cfg.Enabled,
		ttl:     cfg.TTL,
		now:     cfg.Now,
	}
}

// Dir returns the cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Enabled reports whether the cache is active.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Get returns the cached result for task, or nil on a miss. Expired entries
// are misses and stay on disk until overwritten or pruned.
func (m *Manager) Get(task models.Task) (*models.AnalysisResult, error) {
	if !m.enabled {
		return nil, nil
	}

	key := Key(task)
	entry, err := m.read(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if m.expired(entry) || entry.Result == nil {
		return nil, nil
	}
	return entry.Result, nil
}

// Put stores result under task's key.
func (m *Manager) Put(task models.Task, result *models.AnalysisResult) error {
	if !m.enabled {
		return nil
	}

	key := Key(task)
	entry := Entry{
		Key:      key,
		Role:     task.Role,
		Result:   result,
		StoredAt: m.now().UTC(),
	}
	if err := fsutil.WriteJSONAtomic(m.path(key), entry); err != nil {
		return &CacheIOError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// Stats summarizes the cache directory.
type Stats struct {
	Entries int `json:"entries"`
	Expired int `json:"expired"`
	Corrupt int `json:"corrupt"`
}

// Stats counts entries, including expired and unreadable ones.
func (m *Manager) Stats() (Stats, error) {
	var s Stats
	err := m.each(func(key string, entry *Entry, err error) {
		s.Entries++
		switch {
		case err != nil:
			s.Corrupt++
		case m.expired(entry):
			s.Expired++
		}
	})
	return s, err
}

// Prune deletes expired and unreadable entries and returns how many it
// removed.
func (m *Manager) Prune() (int, error) {
	removed := 0
	var firstErr error
	err := m.each(func(key string, entry *Entry, err error) {
		if err == nil && !m.expired(entry) {
			return
		}
		if rmErr := os.Remove(m.path(key)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = &CacheIOError{Op: "remove", Key: key, Err: rmErr}
			}
			return
		}
		removed++
	})
	if err != nil {
		return removed, err
	}
	return removed, firstErr
}

// Clear deletes the whole cache directory.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return &CacheIOError{Op: "clear", Key: m.dir, Err: err}
	}
	return nil
}

func (m *Manager) expired(e *Entry) bool {
	return m.now().Sub(e.StoredAt) >= m.ttl
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, key+".json")
}

func (m *Manager) read(key string) (*Entry, error) {
	data, err := os.ReadFile(m.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, &CacheIOError{Op: "read", Key: key, Err: err}
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, &CacheIOError{Op: "parse", Key: key, Err: err}
	}
	return &entry, nil
}

// each calls fn for every entry file in the cache directory.
func (m *Manager) each(fn func(key string, entry *Entry, err error)) error {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &CacheIOError{Op: "list", Key: m.dir, Err: err}
	}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		entry, err := m.read(key)
		fn(key, entry, err)
	}
	return nil
}
