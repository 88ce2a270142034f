// ABOUTME: Router resolves which channel should receive a user's notification
// ABOUTME: Preference first, then best-effort group scan, never dropping to nowhere

package notify

import "fmt"

// Channel is a notification destination. An empty Group means the user's
// private chat.
type Channel struct {
	Group string
}

// PrivateChannel is the direct-message destination.
var PrivateChannel = Channel{}

// Private reports whether the channel is the user's private chat.
func (c Channel) Private() bool {
	return c.Group == ""
}

// MembershipFunc reports whether the user behind the resolution is currently a
// member of the given group. It is supplied per call because membership can
// change out of band and must be checked live against the chat platform.
type MembershipFunc func(groupID string) bool

// Router decides where a notification for a given user should go.
type Router struct {
	directory *Directory
}

// NewRouter creates a Router over the given directory.
func NewRouter(directory *Directory) *Router {
	return &Router{directory: directory}
}

// ResolveChannel picks the notification channel for qqNumber:
//
//  1. An explicit private preference always wins.
//  2. A preferred group is used if the user is still a member of it.
//  3. Otherwise the roster is scanned in order and the first group the user
//     belongs to is used.
//  4. If nothing matches, fall back to private chat so the notification is
//     never silently dropped.
//
// isMember is only called outside the store's locked sections, since it may
// hit the network.
func (r *Router) ResolveChannel(qqNumber string, isMember MembershipFunc) (Channel, error) {
	preferred, hasPreference, err := r.directory.GetPreference(qqNumber)
	if err != nil {
		return PrivateChannel, fmt.Errorf("resolving channel for %s: %w", qqNumber, err)
	}

	if hasPreference && preferred == PreferPrivate {
		return PrivateChannel, nil
	}

	if hasPreference && isMember(preferred) {
		return Channel{Group: preferred}, nil
	}

	groups, err := r.directory.ListGroups()
	if err != nil {
		return PrivateChannel, fmt.Errorf("resolving channel for %s: %w", qqNumber, err)
	}
	for _, groupID := range groups {
		if isMember(groupID) {
			return Channel{Group: groupID}, nil
		}
	}

	return PrivateChannel, nil
}
