// ABOUTME: Tests for the JSON document store
// ABOUTME: Covers empty/malformed file handling, atomic rewrites, and concurrent access

package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := New(path, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	return s
}

func TestStore_MissingFileIsEmptyDocument(t *testing.T) {
	s := newTestStore(t)

	err := s.View(func(doc *Document) error {
		assert.Empty(t, doc.Bindings)
		assert.Empty(t, doc.AccountIndex)
		assert.Empty(t, doc.Notifications)
		assert.Empty(t, doc.Groups)
		assert.Empty(t, doc.Pending)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_UpdatePersists(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(func(doc *Document) error {
		doc.Bindings["10001"] = "alice"
		doc.AccountIndex["alice"] = "10001"
		doc.Groups = append(doc.Groups, "200")
		return nil
	})
	require.NoError(t, err)

	// Re-read through a fresh store instance to prove the state is on disk.
	s2, err := New(s.Path(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)

	err = s2.View(func(doc *Document) error {
		assert.Equal(t, "alice", doc.Bindings["10001"])
		assert.Equal(t, "10001", doc.AccountIndex["alice"])
		assert.Equal(t, []string{"200"}, doc.Groups)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_UpdateErrorDoesNotPersist(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(doc *Document) error {
		doc.Bindings["10001"] = "alice"
		return nil
	}))

	err := s.Update(func(doc *Document) error {
		doc.Bindings["10001"] = "mallory"
		return fmt.Errorf("change of heart")
	})
	require.Error(t, err)

	require.NoError(t, s.View(func(doc *Document) error {
		assert.Equal(t, "alice", doc.Bindings["10001"])
		return nil
	}))
}

func TestStore_MalformedFileIsEmptyDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not valid json"), 0644))

	err := s.View(func(doc *Document) error {
		assert.Empty(t, doc.Bindings)
		assert.Empty(t, doc.Pending)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ExternalEditsArePickedUp(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(doc *Document) error {
		doc.Bindings["10001"] = "alice"
		return nil
	}))

	// Simulate an out-of-band edit to the file between operations.
	edited := Document{
		Bindings:     map[string]string{"10002": "bob"},
		AccountIndex: map[string]string{"bob": "10002"},
	}
	data, err := json.Marshal(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), data, 0644))

	require.NoError(t, s.View(func(doc *Document) error {
		assert.Equal(t, "bob", doc.Bindings["10002"])
		_, ok := doc.Bindings["10001"]
		assert.False(t, ok, "store must not cache state across calls")
		return nil
	}))
}

func TestStore_PersistedFieldNames(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(doc *Document) error {
		doc.Bindings["10001"] = "alice"
		doc.AccountIndex["alice"] = "10001"
		doc.Notifications["10001"] = "private"
		doc.Groups = append(doc.Groups, "200")
		doc.Pending["10002"] = PendingBinding{Username: "bob", Code: "123456", ExpireTime: 300, RequestTime: 1}
		doc.LastRequest["10002"] = 1
		return nil
	}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	for _, field := range []string{"bindings", "user_qq_map", "notifications", "groups", "pending_bindings", "last_request", "expire_time", "request_time"} {
		assert.Contains(t, string(data), `"`+field+`"`)
	}
}

func TestStore_NoTempFileLeftBehind(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(doc *Document) error {
		doc.Groups = append(doc.Groups, "200")
		return nil
	}))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file %s left behind", e.Name())
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := newTestStore(t)

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("qq-%d-%d", w, i)
				err := s.Update(func(doc *Document) error {
					doc.Bindings[key] = "user"
					return nil
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, s.View(func(doc *Document) error {
		assert.Len(t, doc.Bindings, workers*perWorker)
		return nil
	}))
}
