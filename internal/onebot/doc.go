// Package onebot is the chat-platform adapter, speaking OneBot v11.
//
// Outbound operations (sending messages, membership queries, group listings)
// go through the HTTP API via Client. Inbound events (private and group
// messages, the bot's own join/leave notices) arrive over a WebSocket via
// Feed, which reconnects automatically and hands parsed events to a Handler.
//
// The adapter is deliberately thin: it converts between wire shapes and plain
// string identifiers and holds no state of its own.
package onebot
