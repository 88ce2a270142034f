// Package store persists all bot state as a single JSON document on disk.
//
// The document is deliberately small: account bindings (both directions),
// notification preferences, the group roster, and pending verification
// requests. Each logical operation re-reads the file, mutates the parsed
// document, and rewrites it in full under one mutex acquisition. That keeps
// concurrent callers (webhook handlers, the event feed, timers) serialized
// without any finer-grained locking, and picks up external edits to the file
// between operations.
//
// Writes are atomic: the new document is written to a temporary file in the
// same directory and renamed over the old one, so readers never observe a
// partially written file. A missing or unparseable file is treated as an
// empty document rather than an error.
package store
