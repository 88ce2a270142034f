// Package webhook receives forum events over HTTP and turns them into chat
// notifications. Submission results are delivered to the linked user's
// resolved channel: a group with an at-mention, or private chat. Redelivered
// events carrying a delivery ID are dropped within a dedupe window.
package webhook
