// Package bot turns inbound chat events into calls on the linking workflow
// and the notification directory, and writes the user-facing replies.
package bot
