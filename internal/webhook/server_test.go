// ABOUTME: Tests for webhook event handling and notification delivery
// ABOUTME: Covers channel resolution, unlinked skip, dedupe, and malformed bodies

package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestecn/hist-bot/internal/link"
	"github.com/celestecn/hist-bot/internal/notify"
	"github.com/celestecn/hist-bot/internal/store"
)

// mockChat records deliveries and serves fixed group membership.
type mockChat struct {
	memberships map[string]bool // "group:qq" -> member
	private     []string        // "qq:text"
	mentions    []string        // "group:qq:text"
}

func newMockChat() *mockChat {
	return &mockChat{memberships: make(map[string]bool)}
}

func (m *mockChat) SendPrivateMessage(ctx context.Context, qqNumber, text string) error {
	m.private = append(m.private, qqNumber+":"+text)
	return nil
}

func (m *mockChat) SendGroupMentionMessage(ctx context.Context, groupID, qqNumber, text string) error {
	m.mentions = append(m.mentions, groupID+":"+qqNumber+":"+text)
	return nil
}

func (m *mockChat) IsMemberOfGroup(ctx context.Context, groupID, qqNumber string) bool {
	return m.memberships[groupID+":"+qqNumber]
}

type fixture struct {
	server    *Server
	chat      *mockChat
	registry  *link.Registry
	directory *notify.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s, err := store.New(filepath.Join(t.TempDir(), "data.json"), logger)
	require.NoError(t, err)

	registry := link.NewRegistry(s)
	directory := notify.NewDirectory(s)
	chat := newMockChat()
	server := NewServer("127.0.0.1:0", registry, notify.NewRouter(directory), chat, logger)

	return &fixture{server: server, chat: chat, registry: registry, directory: directory}
}

func (f *fixture) post(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ApprovedNotifiesGroupWithMention(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Bind("10001", "alice"))
	require.NoError(t, f.directory.AddGroup("200"))
	f.chat.memberships["200:10001"] = true

	rec := f.post(t, `{"event":"submission_approved","username":"alice","map_name":"Summit","map_stars":5,"golden_berry":true}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	require.Len(t, f.chat.mentions, 1)
	assert.Contains(t, f.chat.mentions[0], "200:10001:")
	assert.Contains(t, f.chat.mentions[0], "goldened")
	assert.Contains(t, f.chat.mentions[0], "5-star map Summit")
	assert.Empty(t, f.chat.private)
}

func TestServer_ApprovedWithoutGoldenBerry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Bind("10001", "alice"))

	f.post(t, `{"event":"submission_approved","username":"alice","map_name":"Summit","map_stars":3}`, nil)

	require.Len(t, f.chat.private, 1)
	assert.Contains(t, f.chat.private[0], "cleared")
}

func TestServer_RejectedNotifiesWithReviewer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Bind("10001", "alice"))

	f.post(t, `{"event":"submission_rejected","username":"alice","map_name":"Summit","map_stars":4,"reviewer":"bob"}`, nil)

	require.Len(t, f.chat.private, 1)
	assert.Contains(t, f.chat.private[0], "rejected")
	assert.Contains(t, f.chat.private[0], "Reviewer: bob")
}

func TestServer_UnlinkedUserIsSkipped(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, `{"event":"submission_approved","username":"ghost","map_name":"Summit","map_stars":1}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.chat.private)
	assert.Empty(t, f.chat.mentions)
}

func TestServer_FallsBackToPrivateWhenNoSharedGroup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Bind("10001", "alice"))
	require.NoError(t, f.directory.AddGroup("200"))
	// alice is not a member of group 200

	f.post(t, `{"event":"submission_approved","username":"alice","map_name":"Summit","map_stars":2}`, nil)

	assert.Empty(t, f.chat.mentions)
	require.Len(t, f.chat.private, 1)
	assert.True(t, strings.HasPrefix(f.chat.private[0], "10001:"))
}

func TestServer_PreferredGroupRespected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Bind("10001", "alice"))
	require.NoError(t, f.directory.AddGroup("200"))
	require.NoError(t, f.directory.AddGroup("300"))
	require.NoError(t, f.directory.SetPreference("10001", "300"))
	f.chat.memberships["200:10001"] = true
	f.chat.memberships["300:10001"] = true

	f.post(t, `{"event":"submission_approved","username":"alice","map_name":"Summit","map_stars":2}`, nil)

	require.Len(t, f.chat.mentions, 1)
	assert.True(t, strings.HasPrefix(f.chat.mentions[0], "300:"))
}

func TestServer_DuplicateDeliveryDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Bind("10001", "alice"))

	body := `{"event":"submission_approved","username":"alice","map_name":"Summit","map_stars":2}`
	headers := map[string]string{"X-Delivery-ID": "d-1"}

	rec := f.post(t, body, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.post(t, body, headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Len(t, f.chat.private, 1, "second delivery of d-1 must not notify again")

	// Without a delivery ID there is nothing to dedupe on.
	f.post(t, body, nil)
	f.post(t, body, nil)
	assert.Len(t, f.chat.private, 3)
}

func TestServer_MalformedBodyRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UnknownEventAccepted(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, `{"event":"user_renamed","username":"alice"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.chat.private)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSeenCache_TTLAndCapacity(t *testing.T) {
	c := newSeenCache(seenTTL, 3)

	assert.False(t, c.checkAndMark("a"))
	assert.True(t, c.checkAndMark("a"))

	// Filling past capacity evicts the oldest entry.
	assert.False(t, c.checkAndMark("b"))
	assert.False(t, c.checkAndMark("c"))
	assert.False(t, c.checkAndMark("d"))
	assert.False(t, c.checkAndMark("a"), "oldest entry was evicted at capacity")
}
