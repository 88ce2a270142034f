// ABOUTME: Forum service adapter for verification-code delivery and data export
// ABOUTME: Thin HTTP client against the forum's qqbot and export endpoints

package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the forum backend's bot-facing API.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the forum API at endpoint. token authenticates
// the bot to the bind endpoint.
func NewClient(endpoint, token string, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// bindRequest is the payload for the out-of-band code delivery endpoint.
type bindRequest struct {
	Token            string `json:"token"`
	Username         string `json:"username"`
	VerificationCode string `json:"verification_code"`
	QQNumber         string `json:"qq_number"`
}

// errorResponse is the forum's error envelope.
type errorResponse struct {
	Message string `json:"message"`
}

// DeliverVerificationCode asks the forum to show the code in the account's
// notifications, so only the account holder can complete the bind.
func (c *Client) DeliverVerificationCode(ctx context.Context, username, code, qqNumber string) error {
	body, err := json.Marshal(bindRequest{
		Token:            c.token,
		Username:         username,
		VerificationCode: code,
		QQNumber:         qqNumber,
	})
	if err != nil {
		return fmt.Errorf("encoding bind request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/hist/qqbot/bind", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building bind request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending bind request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var parsed errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Message == "" {
			return fmt.Errorf("bind request rejected: status %d", resp.StatusCode)
		}
		return fmt.Errorf("bind request rejected: %s", parsed.Message)
	}

	c.logger.Info("delivered verification code", "username", username, "qq", qqNumber)
	return nil
}

// Export is the forum's full leaderboard export.
type Export struct {
	Meta    json.RawMessage   `json:"meta"`
	Summary ExportSummary     `json:"summary"`
	Maps    []json.RawMessage `json:"maps"`
	Players []json.RawMessage `json:"players"`
	Runs    []json.RawMessage `json:"runs"`
}

// ExportSummary carries aggregate statistics over the export.
type ExportSummary struct {
	Statistics ExportStatistics `json:"statistics"`
}

// ExportStatistics are the headline numbers shown in the backup README.
type ExportStatistics struct {
	TotalMaps    int `json:"total_maps"`
	TotalPlayers int `json:"total_players"`
	TotalRuns    int `json:"total_runs"`
}

// ExportedAt returns the export timestamp recorded in the meta block, or an
// empty string when absent.
func (e *Export) ExportedAt() string {
	var meta struct {
		ExportedAt string `json:"exported_at"`
	}
	if err := json.Unmarshal(e.Meta, &meta); err != nil {
		return ""
	}
	return meta.ExportedAt
}

// FetchExport downloads the full leaderboard export for backup.
func (c *Client) FetchExport(ctx context.Context) (*Export, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/hist/export", nil)
	if err != nil {
		return nil, fmt.Errorf("building export request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hist-bot-backup/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching export: status %d", resp.StatusCode)
	}

	var export Export
	if err := json.NewDecoder(resp.Body).Decode(&export); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}
	return &export, nil
}
