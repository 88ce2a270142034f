// Package notify tracks notification preferences and picks delivery channels.
//
// Directory is plain CRUD over the persisted document: one preferred channel
// per user (a group ID or the "private" sentinel) plus the roster of groups
// the bot is in. Router layers the delivery policy on top: respect an explicit
// preference while it is still valid, otherwise find any group shared with the
// user, otherwise fall back to private chat.
package notify
