// ABOUTME: Configuration loading and parsing for hist-bot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hist-bot configuration
type Config struct {
	OneBot  OneBotConfig  `yaml:"onebot"`
	Forum   ForumConfig   `yaml:"forum"`
	Webhook WebhookConfig `yaml:"webhook"`
	Data    DataConfig    `yaml:"data"`
	Link    LinkConfig    `yaml:"link"`
	Backup  BackupConfig  `yaml:"backup"`
	Logging LoggingConfig `yaml:"logging"`
}

// OneBotConfig holds the OneBot endpoint configuration
type OneBotConfig struct {
	APIURL      string `yaml:"api_url"`
	EventWSURL  string `yaml:"event_ws_url"`
	AccessToken string `yaml:"access_token"`
}

// ForumConfig holds the forum backend configuration
type ForumConfig struct {
	Endpoint string `yaml:"endpoint"`
	BotToken string `yaml:"bot_token"`
}

// WebhookConfig holds the inbound webhook listener configuration
type WebhookConfig struct {
	Addr string `yaml:"addr"`
}

// DataConfig holds the persistent store configuration
type DataConfig struct {
	Path string `yaml:"path"`
}

// LinkConfig holds account-linking timing configuration
type LinkConfig struct {
	Cooldown time.Duration `yaml:"-"`
	CodeTTL  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CooldownRaw string `yaml:"cooldown"`
	CodeTTLRaw  string `yaml:"code_ttl"`
}

// BackupConfig holds the daily git backup configuration
type BackupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RepoPath  string `yaml:"repo_path"`
	RemoteURL string `yaml:"remote_url"`
	Hour      int    `yaml:"hour"`
	Minute    int    `yaml:"minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.OneBot.APIURL == "" {
		return fmt.Errorf("onebot.api_url is required")
	}
	if c.OneBot.EventWSURL == "" {
		return fmt.Errorf("onebot.event_ws_url is required")
	}

	if c.Forum.Endpoint == "" {
		return fmt.Errorf("forum.endpoint is required")
	}

	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required")
	}

	if c.Backup.Enabled {
		if c.Backup.RepoPath == "" {
			return fmt.Errorf("backup.repo_path is required when backup is enabled")
		}
		if c.Backup.Hour < 0 || c.Backup.Hour > 23 {
			return fmt.Errorf("backup.hour must be between 0 and 23")
		}
		if c.Backup.Minute < 0 || c.Backup.Minute > 59 {
			return fmt.Errorf("backup.minute must be between 0 and 59")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Link.CooldownRaw != "" {
		cfg.Link.Cooldown, err = time.ParseDuration(cfg.Link.CooldownRaw)
		if err != nil {
			return fmt.Errorf("parsing cooldown %q: %w", cfg.Link.CooldownRaw, err)
		}
	}

	if cfg.Link.CodeTTLRaw != "" {
		cfg.Link.CodeTTL, err = time.ParseDuration(cfg.Link.CodeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing code_ttl %q: %w", cfg.Link.CodeTTLRaw, err)
		}
	}

	return nil
}
