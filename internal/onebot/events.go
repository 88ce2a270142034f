// ABOUTME: OneBot v11 WebSocket event feed with automatic reconnection
// ABOUTME: Parses message/notice events and dispatches them to a narrow Handler interface

package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

// Handler receives parsed chat events. Implementations must not block for
// long; the feed dispatches events sequentially in connection order.
type Handler interface {
	// HandleConnected fires after each (re)connection to the event socket.
	HandleConnected(ctx context.Context)

	// HandlePrivateMessage fires for direct messages to the bot.
	HandlePrivateMessage(ctx context.Context, qqNumber, text string)

	// HandleGroupMessage fires for messages in groups the bot is in.
	HandleGroupMessage(ctx context.Context, groupID, qqNumber, text string)

	// HandleGroupJoined fires when the bot itself is added to a group.
	HandleGroupJoined(ctx context.Context, groupID string)

	// HandleGroupLeft fires when the bot itself leaves or is removed from a group.
	HandleGroupLeft(ctx context.Context, groupID string)
}

// event is the wire shape of a OneBot v11 push event. Only the fields the bot
// reacts to are declared.
type event struct {
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	NoticeType    string          `json:"notice_type"`
	MetaEventType string          `json:"meta_event_type"`
	UserID        int64           `json:"user_id"`
	GroupID       int64           `json:"group_id"`
	SelfID        int64           `json:"self_id"`
	RawMessage    string          `json:"raw_message"`
	Message       json.RawMessage `json:"message"`
}

// messageSegment is one element of a segmented OneBot message array.
type messageSegment struct {
	Type string `json:"type"`
	Data struct {
		Text string `json:"text"`
	} `json:"data"`
}

// defaultReconnectInterval is the wait between reconnection attempts.
const defaultReconnectInterval = 5 * time.Second

// Feed maintains a WebSocket connection to the OneBot event stream and pushes
// parsed events into a Handler.
type Feed struct {
	wsURL       string
	accessToken string
	handler     Handler
	logger      *slog.Logger
	reconnect   time.Duration
}

// NewFeed creates a Feed for the OneBot WebSocket at wsURL.
func NewFeed(wsURL, accessToken string, handler Handler, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:       wsURL,
		accessToken: accessToken,
		handler:     handler,
		logger:      logger,
		reconnect:   defaultReconnectInterval,
	}
}

// Run connects to the event socket and dispatches events until ctx is
// cancelled, reconnecting after connection failures.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("event socket disconnected", "error", err, "retry_in", f.reconnect)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnect):
		}
	}
}

// runOnce dials the socket and reads events until the connection drops.
func (f *Feed) runOnce(ctx context.Context) error {
	url := f.wsURL
	if f.accessToken != "" {
		url += "/?access_token=" + f.accessToken
	}

	opts := &websocket.DialOptions{}
	if f.accessToken != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + f.accessToken}}
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return fmt.Errorf("dialing event socket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	// Event payloads (group lists, long messages) can exceed the default limit.
	conn.SetReadLimit(1 << 20)

	f.logger.Info("connected to event socket", "url", f.wsURL)
	f.handler.HandleConnected(ctx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}
		f.dispatch(ctx, data)
	}
}

// dispatch parses one raw event and routes it to the handler. Unknown events
// and heartbeats are ignored.
func (f *Feed) dispatch(ctx context.Context, data []byte) {
	var evt event
	if err := json.Unmarshal(data, &evt); err != nil {
		f.logger.Warn("discarding malformed event", "error", err)
		return
	}

	switch evt.PostType {
	case "message":
		f.dispatchMessage(ctx, &evt)
	case "notice":
		f.dispatchNotice(ctx, &evt)
	case "meta_event":
		// Lifecycle and heartbeat events need no reaction.
	}
}

func (f *Feed) dispatchMessage(ctx context.Context, evt *event) {
	text := evt.RawMessage
	if text == "" {
		text = extractText(evt.Message)
	}
	qqNumber := strconv.FormatInt(evt.UserID, 10)

	switch evt.MessageType {
	case "private":
		f.logger.Debug("private message", "qq", qqNumber)
		f.handler.HandlePrivateMessage(ctx, qqNumber, text)
	case "group":
		groupID := strconv.FormatInt(evt.GroupID, 10)
		f.logger.Debug("group message", "group", groupID, "qq", qqNumber)
		f.handler.HandleGroupMessage(ctx, groupID, qqNumber, text)
	}
}

func (f *Feed) dispatchNotice(ctx context.Context, evt *event) {
	// Membership notices fire for every member; only the bot's own
	// join/leave matters here.
	if evt.UserID != evt.SelfID {
		return
	}
	groupID := strconv.FormatInt(evt.GroupID, 10)

	switch evt.NoticeType {
	case "group_increase":
		f.logger.Info("joined group", "group", groupID)
		f.handler.HandleGroupJoined(ctx, groupID)
	case "group_decrease":
		f.logger.Info("left group", "group", groupID)
		f.handler.HandleGroupLeft(ctx, groupID)
	}
}

// extractText flattens a segmented message into its plain-text parts.
// The message field is either a raw string or an array of typed segments.
func extractText(message json.RawMessage) string {
	if len(message) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(message, &plain); err == nil {
		return plain
	}

	var segments []messageSegment
	if err := json.Unmarshal(message, &segments); err != nil {
		return ""
	}

	var out string
	for _, seg := range segments {
		if seg.Type == "text" {
			out += seg.Data.Text
		}
	}
	return out
}
