// ABOUTME: JSON document store with a single mutex guarding load-modify-persist cycles
// ABOUTME: Defines the persisted Document layout shared by link and notify packages

package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// PendingBinding is an issued-but-unconfirmed link request awaiting verification.
// Times are unix seconds.
type PendingBinding struct {
	Username    string `json:"username"`
	Code        string `json:"code"`
	ExpireTime  int64  `json:"expire_time"`
	RequestTime int64  `json:"request_time"`
}

// Document is the full persisted state of the bot. Every mutation rewrites the
// whole document; no component keeps a copy between operations.
type Document struct {
	// Bindings maps QQ number to forum account name.
	Bindings map[string]string `json:"bindings"`

	// AccountIndex is the inverse of Bindings: forum account name to QQ number.
	AccountIndex map[string]string `json:"user_qq_map"`

	// Notifications maps QQ number to a preferred group ID, or the "private" sentinel.
	Notifications map[string]string `json:"notifications"`

	// Groups is the roster of group IDs the bot currently belongs to.
	Groups []string `json:"groups"`

	// Pending maps QQ number to its outstanding verification request.
	Pending map[string]PendingBinding `json:"pending_bindings"`

	// LastRequest maps QQ number to the unix time of its latest bind request.
	// Kept separately from Pending so the request-rate throttle outlives the
	// pending entry itself (verification consumes the entry, not the timestamp).
	LastRequest map[string]int64 `json:"last_request"`
}

// normalize replaces nil maps with empty ones so callers can write without nil checks.
func (d *Document) normalize() {
	if d.Bindings == nil {
		d.Bindings = make(map[string]string)
	}
	if d.AccountIndex == nil {
		d.AccountIndex = make(map[string]string)
	}
	if d.Notifications == nil {
		d.Notifications = make(map[string]string)
	}
	if d.Pending == nil {
		d.Pending = make(map[string]PendingBinding)
	}
	if d.LastRequest == nil {
		d.LastRequest = make(map[string]int64)
	}
}

// Store owns the persisted JSON document. All access goes through Update or View,
// which serialize against a single mutex; no operation spans two lock acquisitions.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a Store backed by the JSON file at path. The parent directory is
// created if needed; the file itself is created lazily on first Update.
func New(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{path: path, logger: logger}, nil
}

// Update acquires the lock, loads the current document, applies fn, and persists
// the result. If fn returns an error the document is not written back.
// A missing or malformed file is treated as an empty document, not an error.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// View acquires the lock, loads the current document, and applies fn without
// persisting. Use for read-only operations.
func (s *Store) View(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(s.load())
}

// load reads the document from disk. Missing or malformed content yields an
// empty document: availability is favored over strict durability here.
// Must be called with mu held.
func (s *Store) load() *Document {
	var doc Document

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("reading data file, starting from empty document", "path", s.path, "error", err)
		}
		doc.normalize()
		return &doc
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("data file is malformed, starting from empty document", "path", s.path, "error", err)
		doc = Document{}
	}

	doc.normalize()
	return &doc
}

// save writes the full document atomically: marshal to a temp file in the same
// directory, then rename into place so a crash mid-write never exposes a
// half-written file. Must be called with mu held.
func (s *Store) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting temp file mode: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing data file: %w", err)
	}
	return nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}
