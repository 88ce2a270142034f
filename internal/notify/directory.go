// ABOUTME: Directory stores per-user notification preferences and the group roster
// ABOUTME: Pure CRUD over the shared document with set semantics for groups

package notify

import (
	"fmt"
	"slices"

	"github.com/celestecn/hist-bot/internal/store"
)

// PreferPrivate is the preference sentinel meaning "always notify in private chat".
const PreferPrivate = "private"

// Directory records which channel each linked user wants notifications in, and
// the roster of groups the bot currently belongs to.
type Directory struct {
	store *store.Store
}

// NewDirectory creates a Directory backed by the given store.
func NewDirectory(s *store.Store) *Directory {
	return &Directory{store: s}
}

// SetPreference records the notification target for qqNumber: a group ID, or
// PreferPrivate. Preferences never expire.
func (d *Directory) SetPreference(qqNumber, selector string) error {
	err := d.store.Update(func(doc *store.Document) error {
		doc.Notifications[qqNumber] = selector
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting notification preference for %s: %w", qqNumber, err)
	}
	return nil
}

// GetPreference returns the recorded notification target for qqNumber.
// ok is false when no preference was ever set.
func (d *Directory) GetPreference(qqNumber string) (selector string, ok bool, err error) {
	err = d.store.View(func(doc *store.Document) error {
		selector, ok = doc.Notifications[qqNumber]
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("reading notification preference for %s: %w", qqNumber, err)
	}
	return selector, ok, nil
}

// AddGroup adds groupID to the roster. Adding an existing group is a no-op.
func (d *Directory) AddGroup(groupID string) error {
	err := d.store.Update(func(doc *store.Document) error {
		if !slices.Contains(doc.Groups, groupID) {
			doc.Groups = append(doc.Groups, groupID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("adding group %s: %w", groupID, err)
	}
	return nil
}

// RemoveGroup removes groupID from the roster. Removing an absent group is a no-op.
func (d *Directory) RemoveGroup(groupID string) error {
	err := d.store.Update(func(doc *store.Document) error {
		if i := slices.Index(doc.Groups, groupID); i >= 0 {
			doc.Groups = slices.Delete(doc.Groups, i, i+1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing group %s: %w", groupID, err)
	}
	return nil
}

// ListGroups returns the roster in insertion order.
func (d *Directory) ListGroups() ([]string, error) {
	var groups []string
	err := d.store.View(func(doc *store.Document) error {
		groups = slices.Clone(doc.Groups)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	return groups, nil
}
