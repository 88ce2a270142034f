// ABOUTME: Daily git-based backup of the forum's leaderboard export
// ABOUTME: Fetches the export, writes data files into a repo, commits and pushes

package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/celestecn/hist-bot/internal/forum"
)

// ExportFetcher provides the data to back up.
type ExportFetcher interface {
	FetchExport(ctx context.Context) (*forum.Export, error)
}

// checkInterval is how often the scheduler loop compares the clock against
// the configured backup time.
const checkInterval = 30 * time.Second

// Scheduler runs one backup per day at a configured local time.
type Scheduler struct {
	fetcher   ExportFetcher
	repoPath  string
	remoteURL string
	hour      int
	minute    int
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler committing into the git repo at repoPath.
// remoteURL is used to clone the repo on first run and may be empty if the
// repo already exists locally.
func NewScheduler(fetcher ExportFetcher, repoPath, remoteURL string, hour, minute int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		fetcher:   fetcher,
		repoPath:  repoPath,
		remoteURL: remoteURL,
		hour:      hour,
		minute:    minute,
		logger:    logger,
	}
}

// Run loops until ctx is cancelled, triggering RunOnce when the configured
// time of day is reached and no backup ran yet today.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("backup scheduler started", "at", fmt.Sprintf("%02d:%02d", s.hour, s.minute), "repo", s.repoPath)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	var lastBackupDate string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now()
			if !s.due(now, lastBackupDate) {
				continue
			}
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduled backup failed", "error", err)
				continue
			}
			lastBackupDate = now.Format(time.DateOnly)
		}
	}
}

// due reports whether a backup should run at now given the date of the last
// successful run.
func (s *Scheduler) due(now time.Time, lastBackupDate string) bool {
	return now.Hour() == s.hour &&
		now.Minute() == s.minute &&
		now.Format(time.DateOnly) != lastBackupDate
}

// RunOnce performs one full backup cycle: fetch, prepare repo, write files,
// commit and push.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.logger.Info("backup starting", "repo", s.repoPath)

	export, err := s.fetcher.FetchExport(ctx)
	if err != nil {
		return fmt.Errorf("fetching export: %w", err)
	}

	if err := s.ensureRepo(ctx); err != nil {
		return err
	}

	if err := writeExportFiles(export, s.repoPath); err != nil {
		return err
	}

	if err := s.commitAndPush(ctx); err != nil {
		return err
	}

	s.logger.Info("backup complete", "repo", s.repoPath)
	return nil
}

// ensureRepo makes sure repoPath is a git repository, cloning it from the
// remote on first run. A pull failure is logged but not fatal: the push
// will surface real divergence.
func (s *Scheduler) ensureRepo(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.repoPath, ".git")); err == nil {
		if out, err := s.git(ctx, s.repoPath, "pull", "--ff-only"); err != nil {
			s.logger.Warn("git pull failed", "output", out, "error", err)
		}
		return nil
	}

	if _, err := os.Stat(s.repoPath); err == nil {
		return fmt.Errorf("backup path exists but is not a git repo: %s", s.repoPath)
	}

	if s.remoteURL == "" {
		return fmt.Errorf("backup repo %s does not exist and no remote URL is configured", s.repoPath)
	}

	if err := os.MkdirAll(filepath.Dir(s.repoPath), 0755); err != nil {
		return fmt.Errorf("creating backup parent directory: %w", err)
	}
	if out, err := s.git(ctx, "", "clone", s.remoteURL, s.repoPath); err != nil {
		return fmt.Errorf("cloning backup repo: %w: %s", err, out)
	}
	return nil
}

// commitAndPush commits any changes and pushes the current branch. No
// changes means no commit.
func (s *Scheduler) commitAndPush(ctx context.Context) error {
	status, err := s.git(ctx, s.repoPath, "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		s.logger.Info("no changes to back up")
		return nil
	}

	if out, err := s.git(ctx, s.repoPath, "add", "-A"); err != nil {
		return fmt.Errorf("git add: %w: %s", err, out)
	}

	branch, err := s.git(ctx, s.repoPath, "branch", "--show-current")
	if err != nil {
		return fmt.Errorf("git branch: %w", err)
	}
	branch = strings.TrimSpace(branch)
	if branch == "" {
		if out, err := s.git(ctx, s.repoPath, "checkout", "-B", "main"); err != nil {
			return fmt.Errorf("git checkout: %w: %s", err, out)
		}
		branch = "main"
	}

	message := "Backup " + time.Now().Format("2006-01-02 15:04")
	if out, err := s.git(ctx, s.repoPath, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, out)
	}
	if out, err := s.git(ctx, s.repoPath, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("git push: %w: %s", err, out)
	}
	return nil
}

// git runs a git command, returning its combined output.
func (s *Scheduler) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// writeExportFiles lays the export out as JSON files plus a README under repoPath.
func writeExportFiles(export *forum.Export, repoPath string) error {
	dataDir := filepath.Join(repoPath, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	files := []struct {
		name    string
		payload any
	}{
		{"maps.json", struct {
			Meta  json.RawMessage   `json:"meta"`
			Count int               `json:"count"`
			Maps  []json.RawMessage `json:"maps"`
		}{export.Meta, len(export.Maps), export.Maps}},
		{"players.json", struct {
			Meta    json.RawMessage   `json:"meta"`
			Count   int               `json:"count"`
			Players []json.RawMessage `json:"players"`
		}{export.Meta, len(export.Players), export.Players}},
		{"runs.json", struct {
			Meta  json.RawMessage   `json:"meta"`
			Count int               `json:"count"`
			Runs  []json.RawMessage `json:"runs"`
		}{export.Meta, len(export.Runs), export.Runs}},
		{"summary.json", struct {
			Meta       json.RawMessage       `json:"meta"`
			Statistics forum.ExportStatistics `json:"statistics"`
		}{export.Meta, export.Summary.Statistics}},
	}

	for _, f := range files {
		data, err := json.MarshalIndent(f.payload, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dataDir, f.name), data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}

	readme := renderReadme(export)
	if err := os.WriteFile(filepath.Join(repoPath, "README.md"), []byte(readme), 0644); err != nil {
		return fmt.Errorf("writing README.md: %w", err)
	}
	return nil
}

// renderReadme builds the repository README with headline statistics.
func renderReadme(export *forum.Export) string {
	stats := export.Summary.Statistics
	return fmt.Sprintf(`# HIST Leaderboard Backup

Auto-generated backup of HIST game leaderboard data.

## Statistics

| Metric | Value |
|--------|-------|
| Total Maps | %d |
| Total Players | %d |
| Total Runs | %d |

## Last Updated

%s

## Files

- data/maps.json - Map list with recommendation stats
- data/players.json - Player rankings
- data/runs.json - All completion records
- data/summary.json - Summary statistics
`, stats.TotalMaps, stats.TotalPlayers, stats.TotalRuns, export.ExportedAt())
}
