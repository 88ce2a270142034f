// ABOUTME: Tests for OneBot event parsing and dispatch
// ABOUTME: Covers message/notice routing, self-only join/leave, and segment text extraction

package onebot

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingHandler captures dispatched events for assertions.
type recordingHandler struct {
	connected    int
	privateMsgs  []string // "qq:text"
	groupMsgs    []string // "group:qq:text"
	joinedGroups []string
	leftGroups   []string
}

func (h *recordingHandler) HandleConnected(ctx context.Context) { h.connected++ }

func (h *recordingHandler) HandlePrivateMessage(ctx context.Context, qqNumber, text string) {
	h.privateMsgs = append(h.privateMsgs, qqNumber+":"+text)
}

func (h *recordingHandler) HandleGroupMessage(ctx context.Context, groupID, qqNumber, text string) {
	h.groupMsgs = append(h.groupMsgs, groupID+":"+qqNumber+":"+text)
}

func (h *recordingHandler) HandleGroupJoined(ctx context.Context, groupID string) {
	h.joinedGroups = append(h.joinedGroups, groupID)
}

func (h *recordingHandler) HandleGroupLeft(ctx context.Context, groupID string) {
	h.leftGroups = append(h.leftGroups, groupID)
}

func newTestFeed(h Handler) *Feed {
	return NewFeed("ws://unused", "", h, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestFeed_DispatchPrivateMessage(t *testing.T) {
	h := &recordingHandler{}
	f := newTestFeed(h)

	f.dispatch(context.Background(), []byte(`{"post_type":"message","message_type":"private","user_id":10001,"raw_message":"/bind alice"}`))

	assert.Equal(t, []string{"10001:/bind alice"}, h.privateMsgs)
	assert.Empty(t, h.groupMsgs)
}

func TestFeed_DispatchGroupMessage(t *testing.T) {
	h := &recordingHandler{}
	f := newTestFeed(h)

	f.dispatch(context.Background(), []byte(`{"post_type":"message","message_type":"group","group_id":200,"user_id":10001,"raw_message":"/noti"}`))

	assert.Equal(t, []string{"200:10001:/noti"}, h.groupMsgs)
}

func TestFeed_DispatchFallsBackToSegments(t *testing.T) {
	h := &recordingHandler{}
	f := newTestFeed(h)

	f.dispatch(context.Background(), []byte(`{"post_type":"message","message_type":"private","user_id":10001,"message":[{"type":"text","data":{"text":"/verify "}},{"type":"face","data":{"id":"1"}},{"type":"text","data":{"text":"123456"}}]}`))

	assert.Equal(t, []string{"10001:/verify 123456"}, h.privateMsgs)
}

func TestFeed_DispatchSelfJoinLeave(t *testing.T) {
	h := &recordingHandler{}
	f := newTestFeed(h)

	f.dispatch(context.Background(), []byte(`{"post_type":"notice","notice_type":"group_increase","group_id":200,"user_id":5,"self_id":5}`))
	f.dispatch(context.Background(), []byte(`{"post_type":"notice","notice_type":"group_decrease","group_id":200,"user_id":5,"self_id":5}`))

	assert.Equal(t, []string{"200"}, h.joinedGroups)
	assert.Equal(t, []string{"200"}, h.leftGroups)
}

func TestFeed_DispatchIgnoresOtherMembersJoinLeave(t *testing.T) {
	h := &recordingHandler{}
	f := newTestFeed(h)

	f.dispatch(context.Background(), []byte(`{"post_type":"notice","notice_type":"group_increase","group_id":200,"user_id":7,"self_id":5}`))

	assert.Empty(t, h.joinedGroups)
}

func TestFeed_DispatchIgnoresMetaAndMalformed(t *testing.T) {
	h := &recordingHandler{}
	f := newTestFeed(h)

	f.dispatch(context.Background(), []byte(`{"post_type":"meta_event","meta_event_type":"heartbeat"}`))
	f.dispatch(context.Background(), []byte(`not json`))

	assert.Empty(t, h.privateMsgs)
	assert.Empty(t, h.groupMsgs)
	assert.Zero(t, h.connected)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"empty", ``, ""},
		{"plain string", `"hello"`, "hello"},
		{"segments", `[{"type":"text","data":{"text":"a"}},{"type":"text","data":{"text":"b"}}]`, "ab"},
		{"non-text segments skipped", `[{"type":"image","data":{}},{"type":"text","data":{"text":"x"}}]`, "x"},
		{"unparseable", `{"neither":"shape"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(json.RawMessage(tt.message)))
		})
	}
}
