// ABOUTME: Ledger tracks pending link requests with verification codes, cooldown, and TTL
// ABOUTME: Verify consumes the pending entry and installs the binding in the same store operation

package link

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/celestecn/hist-bot/internal/store"
)

// Verification errors surfaced to users.
var (
	// ErrNoPendingRequest means verify was called without an outstanding bind request.
	ErrNoPendingRequest = errors.New("no pending bind request")

	// ErrCodeExpired means the verification code's validity window has passed.
	// The pending entry is removed when this is returned.
	ErrCodeExpired = errors.New("verification code expired")

	// ErrCodeMismatch means the supplied code was wrong. The pending entry is retained.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// CooldownError is returned by RequestLink when a previous request for the
// same QQ number is still within the cooldown window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("bind request on cooldown for %d more seconds", int(e.Remaining.Seconds()))
}

// Defaults for the verification state machine.
const (
	DefaultCooldown = 60 * time.Second
	DefaultCodeTTL  = 5 * time.Minute
)

// Ledger manages time-limited verification requests. At most one pending entry
// exists per QQ number; a new request overwrites any prior one.
type Ledger struct {
	store    *store.Store
	cooldown time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

// NewLedger creates a Ledger. Zero cooldown or ttl select the defaults.
func NewLedger(s *store.Store, cooldown, ttl time.Duration, logger *slog.Logger) *Ledger {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &Ledger{store: s, cooldown: cooldown, ttl: ttl, logger: logger}
}

// generateCode returns a uniformly random 6-digit decimal code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RequestLink creates a pending link from qqNumber to username and returns the
// verification code for out-of-band delivery. It fails with *CooldownError if
// the identity's previous request was issued less than the cooldown ago. The
// throttle is keyed on the last request timestamp, not the pending entry, so
// it holds through verification and entry expiry alike. Timestamps are stored
// as unix seconds, so elapsed time is computed at that granularity.
func (l *Ledger) RequestLink(qqNumber, username string, now time.Time) (string, error) {
	var code string

	err := l.store.Update(func(doc *store.Document) error {
		if last, ok := doc.LastRequest[qqNumber]; ok {
			elapsed := time.Duration(now.Unix()-last) * time.Second
			if elapsed < l.cooldown {
				return &CooldownError{Remaining: l.cooldown - elapsed}
			}
		}

		var err error
		code, err = generateCode()
		if err != nil {
			return err
		}

		doc.Pending[qqNumber] = store.PendingBinding{
			Username:    username,
			Code:        code,
			ExpireTime:  now.Add(l.ttl).Unix(),
			RequestTime: now.Unix(),
		}
		doc.LastRequest[qqNumber] = now.Unix()
		return nil
	})
	if err != nil {
		return "", err
	}

	l.logger.Info("issued verification code", "qq", qqNumber, "username", username)
	return code, nil
}

// Verify checks the supplied code against the pending entry for qqNumber.
// On success the pending entry is consumed and the binding installed, all in
// one store operation; the bound username is returned. An expired entry is
// deleted and ErrCodeExpired returned. A wrong code leaves the entry in place.
func (l *Ledger) Verify(qqNumber, suppliedCode string, now time.Time) (string, error) {
	var username string
	var outcome error

	err := l.store.Update(func(doc *store.Document) error {
		pending, ok := doc.Pending[qqNumber]
		if !ok {
			outcome = ErrNoPendingRequest
			return nil
		}

		if now.Unix() > pending.ExpireTime {
			delete(doc.Pending, qqNumber)
			outcome = ErrCodeExpired
			return nil
		}

		if pending.Code != suppliedCode {
			outcome = ErrCodeMismatch
			return nil
		}

		username = pending.Username
		delete(doc.Pending, qqNumber)
		applyBind(doc, qqNumber, username)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("verifying %s: %w", qqNumber, err)
	}
	if outcome != nil {
		return "", outcome
	}

	l.logger.Info("verified binding", "qq", qqNumber, "username", username)
	return username, nil
}

// Sweep removes pending entries whose codes expired before now and returns how
// many were removed. Expiry is otherwise only checked lazily at Verify time,
// so a periodic sweep bounds how long inert entries linger in the document.
// Request timestamps that fell out of the cooldown window are pruned too, but
// not counted.
func (l *Ledger) Sweep(now time.Time) (int, error) {
	removed := 0
	err := l.store.Update(func(doc *store.Document) error {
		for qq, pending := range doc.Pending {
			if now.Unix() > pending.ExpireTime {
				delete(doc.Pending, qq)
				removed++
			}
		}
		for qq, last := range doc.LastRequest {
			if time.Duration(now.Unix()-last)*time.Second >= l.cooldown {
				delete(doc.LastRequest, qq)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweeping pending links: %w", err)
	}
	if removed > 0 {
		l.logger.Debug("swept expired pending links", "count", removed)
	}
	return removed, nil
}
