// Package link implements the account-linking state machine.
//
// A user binds their QQ number to a forum account in two steps: /bind issues a
// 6-digit verification code (delivered out of band through the forum), and
// /verify consumes it. Pending requests live at most one code TTL and new
// requests are throttled by a per-user cooldown. Completed bindings are
// bijective: rebinding either side atomically removes the stale half of the
// old pair.
//
// Registry holds completed bindings, Ledger holds pending ones, and Workflow
// wires both to the forum adapter and the notification directory behind the
// chat commands.
package link
