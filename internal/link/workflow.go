// ABOUTME: Workflow orchestrates bind requests, verification, and notification-target changes
// ABOUTME: Talks to the forum adapter for out-of-band code delivery; requires a link before /noti

package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/celestecn/hist-bot/internal/notify"
)

// ErrNotLinked means the user must complete the bind flow before the requested
// operation is allowed.
var ErrNotLinked = errors.New("no forum account linked")

// CodeDeliverer delivers a verification code to the account holder through an
// out-of-band channel (the forum's notification system).
type CodeDeliverer interface {
	DeliverVerificationCode(ctx context.Context, username, code, qqNumber string) error
}

// Workflow ties the registry, the pending-link ledger, and the notification
// directory together behind the user-facing commands.
type Workflow struct {
	registry  *Registry
	ledger    *Ledger
	directory *notify.Directory
	forum     CodeDeliverer
	logger    *slog.Logger

	now func() time.Time
}

// NewWorkflow creates a Workflow around the given collaborators.
func NewWorkflow(registry *Registry, ledger *Ledger, directory *notify.Directory, forum CodeDeliverer, logger *slog.Logger) *Workflow {
	return &Workflow{
		registry:  registry,
		ledger:    ledger,
		directory: directory,
		forum:     forum,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestBind issues a pending link for qqNumber to username and delivers the
// verification code via the forum adapter. A *CooldownError is returned when
// requests come too fast. A delivery failure is returned to the caller but the
// pending entry stays in place; the user can retry /bind after the cooldown.
func (w *Workflow) RequestBind(ctx context.Context, qqNumber, username string) error {
	code, err := w.ledger.RequestLink(qqNumber, username, w.now())
	if err != nil {
		return err
	}

	if err := w.forum.DeliverVerificationCode(ctx, username, code, qqNumber); err != nil {
		w.logger.Warn("verification code delivery failed", "qq", qqNumber, "username", username, "error", err)
		return fmt.Errorf("delivering verification code: %w", err)
	}
	return nil
}

// Verify completes a pending bind with the user-supplied code and returns the
// now-bound username. Failure modes are ErrNoPendingRequest, ErrCodeExpired,
// and ErrCodeMismatch.
func (w *Workflow) Verify(qqNumber, code string) (string, error) {
	return w.ledger.Verify(qqNumber, code, w.now())
}

// SetPreferredGroup records groupID as the user's notification target.
// Fails with ErrNotLinked when the user has not bound an account.
func (w *Workflow) SetPreferredGroup(qqNumber, groupID string) error {
	return w.setPreference(qqNumber, groupID)
}

// SetPreferPrivate records private chat as the user's notification target.
// Fails with ErrNotLinked when the user has not bound an account.
func (w *Workflow) SetPreferPrivate(qqNumber string) error {
	return w.setPreference(qqNumber, notify.PreferPrivate)
}

func (w *Workflow) setPreference(qqNumber, selector string) error {
	_, linked, err := w.registry.LookupAccount(qqNumber)
	if err != nil {
		return err
	}
	if !linked {
		return ErrNotLinked
	}
	return w.directory.SetPreference(qqNumber, selector)
}
