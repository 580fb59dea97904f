package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Entry is the fingerprint of a file as it was when last analyzed
type Entry struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	Hash        string    `json:"sha256"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Ledger remembers which files were analyzed so watch mode can skip reruns
// over an unchanged bundle. It is persisted as one JSON document.
type Ledger struct {
	mu      sync.RWMutex
	path    string
	entries map[string]*Entry
	dirty   bool
}

// Open loads the ledger at path. A missing file yields an empty ledger.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[string]*Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger data: %w", err)
	}
	for _, e := range entries {
		l.entries[e.Path] = e
	}
	return l, nil
}

// Fingerprint stats and hashes the file at path
func Fingerprint(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return &Entry{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Changed reports whether fp differs from the recorded entry for its path.
// A touched file with identical content is not a change.
func (l *Ledger) Changed(fp *Entry) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev, ok := l.entries[fp.Path]
	if !ok {
		return true
	}
	return prev.Hash != fp.Hash
}

// Mark records fp as analyzed
func (l *Ledger) Mark(fp *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := *fp
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now()
	}
	l.entries[e.Path] = &e
	l.dirty = true
}

// Forget drops paths that no longer exist from the ledger
func (l *Ledger) Forget(paths ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range paths {
		if _, ok := l.entries[p]; ok {
			delete(l.entries, p)
			l.dirty = true
		}
	}
}

// Get returns the recorded entry for path
func (l *Ledger) Get(path string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[path]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Paths returns the recorded paths in sorted order
func (l *Ledger) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	paths := make([]string, 0, len(l.entries))
	for p := range l.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of recorded files
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Save writes the ledger if it changed since the last save
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return nil
	}

	entries := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// Write to temporary file first, then rename for atomicity
	tmpFile := l.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tmpFile, l.path); err != nil {
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}

	l.dirty = false
	return nil
}
