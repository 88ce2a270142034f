// ABOUTME: HTTP listener for forum webhook events
// ABOUTME: Resolves the target channel per user and delivers the notification via chat

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/celestecn/hist-bot/internal/notify"
)

// ChatClient is the outbound chat surface used for notification delivery.
type ChatClient interface {
	SendPrivateMessage(ctx context.Context, qqNumber, text string) error
	SendGroupMentionMessage(ctx context.Context, groupID, qqNumber, text string) error
	IsMemberOfGroup(ctx context.Context, groupID, qqNumber string) bool
}

// AccountLookup resolves a forum account name to its linked QQ number.
type AccountLookup interface {
	LookupIdentity(username string) (qqNumber string, ok bool, err error)
}

// dedupe window for redelivered webhook events.
const (
	seenTTL     = 10 * time.Minute
	seenMaxSize = 1000
)

// Server accepts forum webhook posts and pushes notifications to linked users.
type Server struct {
	addr     string
	accounts AccountLookup
	router   *notify.Router
	chat     ChatClient
	seen     *seenCache
	logger   *slog.Logger
}

// NewServer creates a webhook Server listening on addr.
func NewServer(addr string, accounts AccountLookup, router *notify.Router, chat ChatClient, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		accounts: accounts,
		router:   router,
		chat:     chat,
		seen:     newSeenCache(seenTTL, seenMaxSize),
		logger:   logger,
	}
}

// Handler returns the HTTP handler, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleEvent)
	return mux
}

// Run serves webhook requests until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("webhook server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleEvent parses one webhook post and triggers notification delivery.
// Delivery runs inline but its failures never reach the response: an accepted
// event is always answered with 200 so the forum does not retry it.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Delivery IDs come from the forum when it retries; fall back to a
	// generated one so log lines still correlate.
	deliveryID := r.Header.Get("X-Delivery-ID")
	fromForum := deliveryID != ""
	if !fromForum {
		deliveryID = uuid.NewString()
	}

	var evt Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		s.logger.Warn("rejecting malformed webhook body", "delivery", deliveryID, "error", err)
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if fromForum && s.seen.checkAndMark(deliveryID) {
		s.logger.Info("dropping duplicate webhook delivery", "delivery", deliveryID, "event", evt.Event)
		s.respondOK(w)
		return
	}

	s.logger.Info("webhook received", "delivery", deliveryID, "event", evt.Event, "username", evt.Username)

	switch evt.Event {
	case EventSubmissionApproved:
		s.notify(r.Context(), deliveryID, &evt, approvedMessage(&evt))
	case EventSubmissionRejected:
		s.notify(r.Context(), deliveryID, &evt, rejectedMessage(&evt))
	default:
		s.logger.Debug("ignoring unhandled webhook event", "delivery", deliveryID, "event", evt.Event)
	}

	s.respondOK(w)
}

// notify resolves the channel for the event's user and delivers text there.
// An unlinked account means no notification; delivery failures are logged but
// never bubble back to the forum.
func (s *Server) notify(ctx context.Context, deliveryID string, evt *Event, text string) {
	qqNumber, linked, err := s.accounts.LookupIdentity(evt.Username)
	if err != nil {
		s.logger.Error("looking up linked identity", "delivery", deliveryID, "username", evt.Username, "error", err)
		return
	}
	if !linked {
		s.logger.Info("user has no linked QQ, skipping notification", "delivery", deliveryID, "username", evt.Username, "user_id", evt.UserID)
		return
	}

	channel, err := s.router.ResolveChannel(qqNumber, func(groupID string) bool {
		return s.chat.IsMemberOfGroup(ctx, groupID, qqNumber)
	})
	if err != nil {
		s.logger.Error("resolving notification channel", "delivery", deliveryID, "qq", qqNumber, "error", err)
		return
	}

	if channel.Private() {
		if err := s.chat.SendPrivateMessage(ctx, qqNumber, text); err != nil {
			s.logger.Error("sending private notification", "delivery", deliveryID, "qq", qqNumber, "error", err)
			return
		}
		s.logger.Info("notified user in private chat", "delivery", deliveryID, "qq", qqNumber)
		return
	}

	if err := s.chat.SendGroupMentionMessage(ctx, channel.Group, qqNumber, text); err != nil {
		s.logger.Error("sending group notification", "delivery", deliveryID, "group", channel.Group, "qq", qqNumber, "error", err)
		return
	}
	s.logger.Info("notified user in group", "delivery", deliveryID, "group", channel.Group, "qq", qqNumber)
}

func (s *Server) respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"success":true}`))
}
