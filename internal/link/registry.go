// ABOUTME: Registry maintains the bidirectional QQ-number to forum-account binding
// ABOUTME: Bind atomically removes stale halves of old pairs so the mapping stays bijective

package link

import (
	"fmt"

	"github.com/celestecn/hist-bot/internal/store"
)

// Registry is the bidirectional identity-to-account binding, persisted in the
// shared document. Each QQ number maps to at most one forum account and vice
// versa.
type Registry struct {
	store *store.Store
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{store: s}
}

// applyBind inserts the qqNumber<->username pair into the document, first
// removing any existing mapping involving either side. The forward and reverse
// maps are updated in the same document mutation, so the bijection holds at
// every persisted state.
func applyBind(doc *store.Document, qqNumber, username string) {
	if old, ok := doc.Bindings[qqNumber]; ok {
		delete(doc.AccountIndex, old)
	}
	if old, ok := doc.AccountIndex[username]; ok {
		delete(doc.Bindings, old)
	}
	doc.Bindings[qqNumber] = username
	doc.AccountIndex[username] = qqNumber
}

// Bind links qqNumber to username, overwriting any prior binding of either.
// Rebinding is idempotent: the call succeeds regardless of prior state.
func (r *Registry) Bind(qqNumber, username string) error {
	err := r.store.Update(func(doc *store.Document) error {
		applyBind(doc, qqNumber, username)
		return nil
	})
	if err != nil {
		return fmt.Errorf("binding %s: %w", qqNumber, err)
	}
	return nil
}

// LookupAccount returns the forum account bound to qqNumber.
// ok is false when no binding exists.
func (r *Registry) LookupAccount(qqNumber string) (username string, ok bool, err error) {
	err = r.store.View(func(doc *store.Document) error {
		username, ok = doc.Bindings[qqNumber]
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("looking up account for %s: %w", qqNumber, err)
	}
	return username, ok, nil
}

// LookupIdentity returns the QQ number bound to username.
// ok is false when no binding exists.
func (r *Registry) LookupIdentity(username string) (qqNumber string, ok bool, err error) {
	err = r.store.View(func(doc *store.Document) error {
		qqNumber, ok = doc.AccountIndex[username]
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("looking up identity for %s: %w", username, err)
	}
	return qqNumber, ok, nil
}
