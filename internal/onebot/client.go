// ABOUTME: OneBot v11 HTTP API client for outbound chat operations
// ABOUTME: Covers private/group sends, at-mentions via CQ codes, and membership queries

package onebot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ErrAPIFailed is returned when the OneBot implementation reports a failed call.
var ErrAPIFailed = errors.New("onebot api call failed")

// apiResponse is the envelope every OneBot v11 HTTP endpoint returns.
type apiResponse struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to a OneBot v11 HTTP API (go-cqhttp, NapCat, Lagrange, ...).
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a Client for the OneBot HTTP API at baseURL.
// accessToken may be empty when the endpoint is unauthenticated.
func NewClient(baseURL, accessToken string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// call invokes a OneBot endpoint with a JSON payload and decodes the envelope.
func (c *Client) call(ctx context.Context, endpoint string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", endpoint, err)
	}

	if parsed.Status == "failed" {
		c.logger.Warn("onebot api error", "endpoint", endpoint, "retcode", parsed.Retcode, "message", parsed.Message)
		return &parsed, fmt.Errorf("%w: %s: %s", ErrAPIFailed, endpoint, parsed.Message)
	}
	return &parsed, nil
}

// parseID converts an opaque identifier to the numeric form OneBot expects.
func parseID(kind, id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", kind, id, err)
	}
	return n, nil
}

// SendPrivateMessage sends a direct message to the given QQ number.
func (c *Client) SendPrivateMessage(ctx context.Context, qqNumber, text string) error {
	userID, err := parseID("qq number", qqNumber)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "send_private_msg", map[string]any{
		"user_id": userID,
		"message": text,
	})
	if err != nil {
		return err
	}
	c.logger.Debug("sent private message", "qq", qqNumber)
	return nil
}

// SendGroupMessage sends a plain message to the given group.
func (c *Client) SendGroupMessage(ctx context.Context, groupID, text string) error {
	gid, err := parseID("group id", groupID)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "send_group_msg", map[string]any{
		"group_id": gid,
		"message":  text,
	})
	if err != nil {
		return err
	}
	c.logger.Debug("sent group message", "group", groupID)
	return nil
}

// SendGroupMentionMessage sends a group message that at-mentions the given
// user, using the CQ at-code understood by OneBot implementations.
func (c *Client) SendGroupMentionMessage(ctx context.Context, groupID, qqNumber, text string) error {
	gid, err := parseID("group id", groupID)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "send_group_msg", map[string]any{
		"group_id": gid,
		"message":  fmt.Sprintf("[CQ:at,qq=%s] %s", qqNumber, text),
	})
	if err != nil {
		return err
	}
	c.logger.Debug("sent group mention", "group", groupID, "qq", qqNumber)
	return nil
}

// IsMemberOfGroup reports whether the given QQ number is currently a member of
// the group, via a live query. Any failure counts as "not a member".
func (c *Client) IsMemberOfGroup(ctx context.Context, groupID, qqNumber string) bool {
	gid, err := parseID("group id", groupID)
	if err != nil {
		return false
	}
	userID, err := parseID("qq number", qqNumber)
	if err != nil {
		return false
	}

	resp, err := c.call(ctx, "get_group_member_info", map[string]any{
		"group_id": gid,
		"user_id":  userID,
		"no_cache": false,
	})
	if err != nil {
		return false
	}
	return len(resp.Data) > 0 && string(resp.Data) != "null"
}

// groupInfo is the subset of get_group_list entries the bot cares about.
type groupInfo struct {
	GroupID int64 `json:"group_id"`
}

// ListJoinedGroups returns the IDs of all groups the bot account is in.
func (c *Client) ListJoinedGroups(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, "get_group_list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var groups []groupInfo
	if err := json.Unmarshal(resp.Data, &groups); err != nil {
		return nil, fmt.Errorf("decoding group list: %w", err)
	}

	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, strconv.FormatInt(g.GroupID, 10))
	}
	return ids, nil
}

// LoginInfo holds the bot account's own identity.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// GetLoginInfo returns the logged-in bot account's QQ number and nickname.
func (c *Client) GetLoginInfo(ctx context.Context) (*LoginInfo, error) {
	resp, err := c.call(ctx, "get_login_info", map[string]any{})
	if err != nil {
		return nil, err
	}

	var info LoginInfo
	if err := json.Unmarshal(resp.Data, &info); err != nil {
		return nil, fmt.Errorf("decoding login info: %w", err)
	}
	return &info, nil
}
