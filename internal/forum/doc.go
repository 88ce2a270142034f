// Package forum is the adapter for the forum backend's bot API: delivering
// verification codes to account holders out of band, and downloading the
// leaderboard export consumed by the backup job.
package forum
