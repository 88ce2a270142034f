// ABOUTME: Tests for the forum API adapter against a stub server
// ABOUTME: Covers bind payloads, error envelopes, and export decoding

package forum

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "bot-token", slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestClient_DeliverVerificationCode(t *testing.T) {
	var got bindRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/hist/qqbot/bind", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.DeliverVerificationCode(context.Background(), "alice", "123456", "10001"))
	assert.Equal(t, bindRequest{Token: "bot-token", Username: "alice", VerificationCode: "123456", QQNumber: "10001"}, got)
}

func TestClient_DeliverVerificationCodeRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Message: "no such user"})
	})

	err := c.DeliverVerificationCode(context.Background(), "ghost", "123456", "10001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such user")
}

func TestClient_DeliverVerificationCodeOpaqueFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.DeliverVerificationCode(context.Background(), "alice", "123456", "10001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_FetchExport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/hist/export", r.URL.Path)
		w.Write([]byte(`{
			"meta": {"exported_at": "2026-08-30T04:00:00Z"},
			"summary": {"statistics": {"total_maps": 2, "total_players": 5, "total_runs": 9}},
			"maps": [{"name":"m1"},{"name":"m2"}],
			"players": [{},{},{},{},{}],
			"runs": []
		}`))
	})

	export, err := c.FetchExport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-08-30T04:00:00Z", export.ExportedAt())
	assert.Equal(t, 2, export.Summary.Statistics.TotalMaps)
	assert.Len(t, export.Maps, 2)
	assert.Len(t, export.Players, 5)
	assert.Empty(t, export.Runs)
}

func TestClient_FetchExportFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.FetchExport(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
