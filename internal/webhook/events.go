// ABOUTME: Forum webhook event shapes and notification message composition
// ABOUTME: Covers submission approved/rejected events

package webhook

import "fmt"

// Forum event names the bot reacts to.
const (
	EventSubmissionApproved = "submission_approved"
	EventSubmissionRejected = "submission_rejected"
)

// Event is an inbound forum webhook payload. Only the fields used for
// notification messages are declared.
type Event struct {
	Event       string `json:"event"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	MapName     string `json:"map_name"`
	MapStars    int    `json:"map_stars"`
	GoldenBerry bool   `json:"golden_berry"`
	Reviewer    string `json:"reviewer"`
}

// approvedMessage builds the congratulation text for an approved submission.
func approvedMessage(evt *Event) string {
	action := "cleared"
	if evt.GoldenBerry {
		action = "goldened"
	}
	return fmt.Sprintf("Congratulations! %s %s the %d-star map %s!", evt.Username, action, evt.MapStars, evt.MapName)
}

// rejectedMessage builds the text for a rejected submission.
func rejectedMessage(evt *Event) string {
	reviewer := evt.Reviewer
	if reviewer == "" {
		reviewer = "unknown"
	}
	return fmt.Sprintf("Unfortunately, %s's submission for the %d-star map %s was rejected. Reviewer: %s", evt.Username, evt.MapStars, evt.MapName, reviewer)
}
