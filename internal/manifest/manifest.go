// Package manifest computes content-hash maps for files and directory trees.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manifest maps a slash-separated path relative to the analyzed root to the
// hex SHA-256 of the file's content.
type Manifest map[string]string

// DefaultExtensions is the allow-list of file extensions that are hashed.
var DefaultExtensions = []string{
	".py", ".js", ".ts", ".tsx", ".jsx",
	".go", ".rs", ".java", ".c", ".cpp", ".h", ".hpp",
	".md", ".txt", ".json", ".yaml", ".yml", ".toml",
	".html", ".css", ".scss", ".sass", ".sh",
}

// DefaultExcludeDirs are directory names whose subtrees are never walked.
var DefaultExcludeDirs = []string{
	".git", "node_modules", ".rlm", ".rlm_cache",
	"vendor", "dist", "build", "__pycache__", ".venv",
}

// DefaultExcludeFiles are file names never hashed. The checkpoint changes on
// every step of a run.
var DefaultExcludeFiles = []string{".rlm_state.json"}

// Builder computes manifests. The zero value uses the default allow-list and
// exclusions.
type Builder struct {
	// Extensions lists lower-case extensions, with the leading dot, to hash.
	Extensions []string
	// ExcludeDirs lists directory names to skip entirely.
	ExcludeDirs []string
	// ExcludeFiles lists file names to skip.
	ExcludeFiles []string
	// Workers bounds concurrent hashing. Zero means GOMAXPROCS.
	Workers int
}

// NewBuilder returns a Builder with the default allow-list and exclusions.
func NewBuilder() *Builder {
	return &Builder{
		Extensions:   slices.Clone(DefaultExtensions),
		ExcludeDirs:  slices.Clone(DefaultExcludeDirs),
		ExcludeFiles: slices.Clone(DefaultExcludeFiles),
	}
}

// Build hashes path. A single file produces a one-entry manifest keyed by its
// base name; a directory is walked recursively.
func (b *Builder) Build(path string) (Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		sum, err := HashFile(path)
		if err != nil {
			return nil, err
		}
		return Manifest{filepath.Base(path): sum}, nil
	}

	files, err := b.collect(path)
	if err != nil {
		return nil, err
	}
	return b.hashAll(path, files)
}

// collect walks root and returns the relative paths of every allow-listed file.
func (b *Builder) collect(root string) ([]string, error) {
	exts := b.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}
	excluded := b.ExcludeDirs
	if excluded == nil {
		excluded = DefaultExcludeDirs
	}
	skipFiles := b.ExcludeFiles
	if skipFiles == nil {
		skipFiles = DefaultExcludeFiles
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable entries below the root are skipped.
			return nil
		}

		if d.IsDir() {
			if path != root && slices.Contains(excluded, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || slices.Contains(skipFiles, d.Name()) {
			return nil
		}
		if !slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func (b *Builder) hashAll(root string, files []string) (Manifest, error) {
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	m := make(Manifest, len(files))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(workers)
	for _, rel := range files {
		g.Go(func() error {
			sum, err := HashFile(filepath.Join(root, rel))
			if err != nil {
				// Files that vanish or become unreadable mid-walk are left out.
				return nil
			}
			mu.Lock()
			m[filepath.ToSlash(rel)] = sum
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// HashFile returns the hex SHA-256 of the file's full content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Changes classifies the differences between two manifests. Each list is
// sorted.
type Changes struct {
	Changed []string `json:"changed_files"`
	New     []string `json:"new_files"`
	Deleted []string `json:"deleted_files"`
}

// Total returns the number of changed, new and deleted paths.
func (c Changes) Total() int {
	return len(c.Changed) + len(c.New) + len(c.Deleted)
}

// Empty returns true if nothing changed.
func (c Changes) Empty() bool {
	return c.Total() == 0
}

// Diff compares a baseline manifest against a current one. A path present in
// both with a different hash is changed; a path only in current is new; a path
// only in old is deleted.
func Diff(old, current Manifest) Changes {
	c := Changes{
		Changed: []string{},
		New:     []string{},
		Deleted: []string{},
	}

	for path, sum := range current {
		prev, ok := old[path]
		switch {
		case !ok:
			c.New = append(c.New, path)
		case prev != sum:
			c.Changed = append(c.Changed, path)
		}
	}
	for path := range old {
		if _, ok := current[path]; !ok {
			c.Deleted = append(c.Deleted, path)
		}
	}

	slices.Sort(c.Changed)
	slices.Sort(c.New)
	slices.Sort(c.Deleted)
	return c
}

// ShortHash truncates a hash for display.
func ShortHash(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
