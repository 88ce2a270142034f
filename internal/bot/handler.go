// ABOUTME: Chat command dispatcher for /bind, /verify, /noti, and /help
// ABOUTME: Implements the onebot event Handler and keeps the group roster in sync

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/celestecn/hist-bot/internal/link"
	"github.com/celestecn/hist-bot/internal/notify"
)

// Sender is the outbound chat surface the handler replies through.
type Sender interface {
	SendPrivateMessage(ctx context.Context, qqNumber, text string) error
	SendGroupMessage(ctx context.Context, groupID, text string) error
	ListJoinedGroups(ctx context.Context) ([]string, error)
}

const helpText = `hist-bot commands:
/bind <username> - link your forum account
/verify <code> - confirm a pending link with the delivered code
/noti - notify me here (in private chat: private notifications; in a group: that group)
/help - show this help`

// Handler reacts to inbound chat events: command messages and the bot's own
// group join/leave notices.
type Handler struct {
	workflow  *link.Workflow
	directory *notify.Directory
	chat      Sender
	logger    *slog.Logger
}

// NewHandler creates a Handler around the linking workflow and the directory.
func NewHandler(workflow *link.Workflow, directory *notify.Directory, chat Sender, logger *slog.Logger) *Handler {
	return &Handler{
		workflow:  workflow,
		directory: directory,
		chat:      chat,
		logger:    logger,
	}
}

// HandleConnected refreshes the group roster from the live group list, so the
// roster survives events missed while the bot was offline.
func (h *Handler) HandleConnected(ctx context.Context) {
	groups, err := h.chat.ListJoinedGroups(ctx)
	if err != nil {
		h.logger.Warn("group roster sync failed", "error", err)
		return
	}
	for _, groupID := range groups {
		if err := h.directory.AddGroup(groupID); err != nil {
			h.logger.Warn("adding group to roster", "group", groupID, "error", err)
		}
	}
	h.logger.Info("synced group roster", "count", len(groups))
}

// HandlePrivateMessage dispatches private-chat commands.
func (h *Handler) HandlePrivateMessage(ctx context.Context, qqNumber, text string) {
	text = strings.TrimSpace(text)

	switch {
	case text == "/bind" || strings.HasPrefix(text, "/bind "):
		h.handleBind(ctx, qqNumber, strings.TrimSpace(strings.TrimPrefix(text, "/bind")))
	case text == "/verify" || strings.HasPrefix(text, "/verify "):
		h.handleVerify(ctx, qqNumber, strings.TrimSpace(strings.TrimPrefix(text, "/verify")))
	case text == "/noti":
		h.handleNotiPrivate(ctx, qqNumber)
	case text == "/help" || text == "?":
		h.replyPrivate(ctx, qqNumber, helpText)
	}
}

// HandleGroupMessage dispatches group commands. Only /noti is group-addressable.
func (h *Handler) HandleGroupMessage(ctx context.Context, groupID, qqNumber, text string) {
	if strings.TrimSpace(text) == "/noti" {
		h.handleNotiGroup(ctx, groupID, qqNumber)
	}
}

// HandleGroupJoined records a group the bot was added to.
func (h *Handler) HandleGroupJoined(ctx context.Context, groupID string) {
	if err := h.directory.AddGroup(groupID); err != nil {
		h.logger.Error("recording joined group", "group", groupID, "error", err)
	}
}

// HandleGroupLeft removes a group the bot left.
func (h *Handler) HandleGroupLeft(ctx context.Context, groupID string) {
	if err := h.directory.RemoveGroup(groupID); err != nil {
		h.logger.Error("recording left group", "group", groupID, "error", err)
	}
}

func (h *Handler) handleBind(ctx context.Context, qqNumber, username string) {
	if username == "" {
		h.replyPrivate(ctx, qqNumber, "Usage: /bind <username>")
		return
	}

	err := h.workflow.RequestBind(ctx, qqNumber, username)

	var cooldown *link.CooldownError
	switch {
	case err == nil:
		h.replyPrivate(ctx, qqNumber,
			"Bind request sent!\n"+
				"Reply /verify <code> within 5 minutes to finish.\n"+
				"(The code was sent to your forum account's notifications.)")
	case errors.As(err, &cooldown):
		h.replyPrivate(ctx, qqNumber, fmt.Sprintf("Too many requests, try again in %d seconds.", int(cooldown.Remaining.Seconds())))
	default:
		h.replyPrivate(ctx, qqNumber, fmt.Sprintf("Bind request failed: %v", err))
	}
}

func (h *Handler) handleVerify(ctx context.Context, qqNumber, code string) {
	if code == "" {
		h.replyPrivate(ctx, qqNumber, "Usage: /verify <code>")
		return
	}

	username, err := h.workflow.Verify(qqNumber, code)

	switch {
	case err == nil:
		h.replyPrivate(ctx, qqNumber, fmt.Sprintf("Successfully linked to forum account: %s", username))
	case errors.Is(err, link.ErrNoPendingRequest):
		h.replyPrivate(ctx, qqNumber, "No pending bind request. Send /bind <username> first.")
	case errors.Is(err, link.ErrCodeExpired):
		h.replyPrivate(ctx, qqNumber, "The verification code has expired. Send /bind again to get a new one.")
	case errors.Is(err, link.ErrCodeMismatch):
		h.replyPrivate(ctx, qqNumber, "Wrong verification code, please try again.")
	default:
		h.replyPrivate(ctx, qqNumber, fmt.Sprintf("Verification failed: %v", err))
	}
}

func (h *Handler) handleNotiPrivate(ctx context.Context, qqNumber string) {
	err := h.workflow.SetPreferPrivate(qqNumber)

	switch {
	case err == nil:
		h.replyPrivate(ctx, qqNumber, "You will now be notified in private chat.")
	case errors.Is(err, link.ErrNotLinked):
		h.replyPrivate(ctx, qqNumber, "You have not linked an account yet. Send /bind <username> first.")
	default:
		h.replyPrivate(ctx, qqNumber, fmt.Sprintf("Setting notification preference failed: %v", err))
	}
}

func (h *Handler) handleNotiGroup(ctx context.Context, groupID, qqNumber string) {
	err := h.workflow.SetPreferredGroup(qqNumber, groupID)

	switch {
	case err == nil:
		h.replyGroup(ctx, groupID, "This group is now your preferred notification target.")
	case errors.Is(err, link.ErrNotLinked):
		h.replyGroup(ctx, groupID, "You have not linked an account yet. Send /bind <username> to the bot in a private chat first.")
	default:
		h.replyGroup(ctx, groupID, fmt.Sprintf("Setting notification preference failed: %v", err))
	}
}

func (h *Handler) replyPrivate(ctx context.Context, qqNumber, text string) {
	if err := h.chat.SendPrivateMessage(ctx, qqNumber, text); err != nil {
		h.logger.Error("sending private reply", "qq", qqNumber, "error", err)
	}
}

func (h *Handler) replyGroup(ctx context.Context, groupID, text string) {
	if err := h.chat.SendGroupMessage(ctx, groupID, text); err != nil {
		h.logger.Error("sending group reply", "group", groupID, "error", err)
	}
}
