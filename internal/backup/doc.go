// ABOUTME: Package backup snapshots the forum's leaderboard export into a git repo
// ABOUTME: A scheduler commits and pushes the data files once per day

// Package backup mirrors the forum's leaderboard export into a git
// repository on a daily schedule. Each run fetches the full export,
// rewrites the data files and the README, and commits only when
// something changed.
package backup
