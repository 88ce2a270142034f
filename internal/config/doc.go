// Package config handles configuration loading for hist-bot.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	forum:
//	  bot_token: "${HIST_BOT_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	link:
//	  cooldown: "60s"
//	  code_ttl: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// OneBot endpoints:
//
//	onebot:
//	  api_url: "http://127.0.0.1:3000"
//	  event_ws_url: "ws://127.0.0.1:3001"
//	  access_token: "${ONEBOT_ACCESS_TOKEN}"
//
// Forum backend:
//
//	forum:
//	  endpoint: "https://forum.example.com"
//	  bot_token: "${HIST_BOT_TOKEN}"
//
// Webhook listener:
//
//	webhook:
//	  addr: "0.0.0.0:9999"
//
// Persistent data:
//
//	data:
//	  path: "/var/lib/hist-bot/data.json"
//
// Link timing:
//
//	link:
//	  cooldown: "60s"
//	  code_ttl: "5m"
//
// Daily backup:
//
//	backup:
//	  enabled: true
//	  repo_path: "/var/lib/hist-bot/backup"
//	  remote_url: "git@github.com:example/hist-backup.git"
//	  hour: 4
//	  minute: 0
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
