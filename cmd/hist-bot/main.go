// ABOUTME: Entry point for the hist-bot QQ account-linking service
// ABOUTME: Wires the store, link workflow, OneBot feed, webhook listener, and backup job

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/celestecn/hist-bot/internal/backup"
	"github.com/celestecn/hist-bot/internal/bot"
	"github.com/celestecn/hist-bot/internal/config"
	"github.com/celestecn/hist-bot/internal/forum"
	"github.com/celestecn/hist-bot/internal/link"
	"github.com/celestecn/hist-bot/internal/notify"
	"github.com/celestecn/hist-bot/internal/onebot"
	"github.com/celestecn/hist-bot/internal/store"
	"github.com/celestecn/hist-bot/internal/webhook"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _     _     _        _           _
| |__ (_)___| |_     | |__   ___ | |_
| '_ \| / __| __|____| '_ \ / _ \| __|
| | | | \__ \ ||_____| |_) | (_) | |_
|_| |_|_|___/\__|    |_.__/ \___/ \__|
`

// sweepInterval is how often the pending-link sweep runs.
const sweepInterval = time.Minute

// getConfigPath returns the path to the bot config file.
// Priority: HIST_BOT_CONFIG env var > ./config.yaml > ~/.config/hist-bot/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HIST_BOT_CONFIG"); envPath != "" {
		return envPath
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hist-bot", "config.yaml")
}

func main() {
	configPath := pflag.String("config", "", "path to config file")
	backupNow := pflag.Bool("backup-now", false, "run a single backup and exit")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *configPath == "" {
		*configPath = getConfigPath()
	}

	var err error
	if *backupNow {
		err = runBackupNow(ctx, *configPath)
	} else {
		err = runServe(ctx, *configPath)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, configPath string) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Data:     %s\n", cfg.Data.Path)
	green.Print("    ▶ ")
	fmt.Printf("OneBot:   %s\n", cfg.OneBot.EventWSURL)
	green.Print("    ▶ ")
	fmt.Printf("Webhook:  %s\n", cfg.Webhook.Addr)

	if cfg.Backup.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Backup:   %s at %02d:%02d\n", cfg.Backup.RepoPath, cfg.Backup.Hour, cfg.Backup.Minute)
	}

	fmt.Println()

	logger.Info("starting hist-bot",
		"config", configPath,
		"data", cfg.Data.Path,
		"webhook_addr", cfg.Webhook.Addr,
	)

	// Persistent state and the link domain on top of it
	st, err := store.New(cfg.Data.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	registry := link.NewRegistry(st)
	ledger := link.NewLedger(st, cfg.Link.Cooldown, cfg.Link.CodeTTL, logger)
	directory := notify.NewDirectory(st)
	router := notify.NewRouter(directory)

	forumClient := forum.NewClient(cfg.Forum.Endpoint, cfg.Forum.BotToken, logger)
	workflow := link.NewWorkflow(registry, ledger, directory, forumClient, logger)

	// Chat-facing adapters
	chat := onebot.NewClient(cfg.OneBot.APIURL, cfg.OneBot.AccessToken, logger)
	handler := bot.NewHandler(workflow, directory, chat, logger)
	feed := onebot.NewFeed(cfg.OneBot.EventWSURL, cfg.OneBot.AccessToken, handler, logger)

	webhookAddr := cfg.Webhook.Addr
	if webhookAddr == "" {
		webhookAddr = "0.0.0.0:9999"
	}
	server := webhook.NewServer(webhookAddr, registry, router, chat, logger)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	run("event feed", feed.Run)
	run("webhook server", server.Run)
	run("pending sweep", func(ctx context.Context) error {
		return runSweep(ctx, ledger, logger)
	})

	if cfg.Backup.Enabled {
		scheduler := backup.NewScheduler(forumClient, cfg.Backup.RepoPath, cfg.Backup.RemoteURL, cfg.Backup.Hour, cfg.Backup.Minute, logger)
		run("backup scheduler", scheduler.Run)
	}

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}

	logger.Info("shutting down")
	wg.Wait()
	return err
}

// runSweep periodically removes expired pending bind requests so the store
// does not accumulate dead entries between restarts.
func runSweep(ctx context.Context, ledger *link.Ledger, logger *slog.Logger) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := ledger.Sweep(time.Now())
			if err != nil {
				logger.Warn("pending sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("swept expired bind requests", "removed", removed)
			}
		}
	}
}

func runBackupNow(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	if cfg.Backup.RepoPath == "" {
		return fmt.Errorf("backup.repo_path is not configured")
	}

	forumClient := forum.NewClient(cfg.Forum.Endpoint, cfg.Forum.BotToken, logger)
	scheduler := backup.NewScheduler(forumClient, cfg.Backup.RepoPath, cfg.Backup.RemoteURL, cfg.Backup.Hour, cfg.Backup.Minute, logger)
	return scheduler.RunOnce(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
