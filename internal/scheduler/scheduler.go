// Package scheduler runs the daemon's periodic background tasks: journal
// retention cleanup and resource usage reporting.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/config"
	"github.com/starx-project/starx/internal/util"
)

// Pruner deletes journal entries older than a cutoff.
type Pruner interface {
	Prune(cutoff time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg     *config.Config
	journal Pruner
	now     func() time.Time

	statsInterval time.Duration
}

// NewScheduler creates a new task scheduler. journal may be nil when the
// journal is disabled.
func NewScheduler(cfg *config.Config, journal Pruner) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		journal:       journal,
		now:           time.Now,
		statsInterval: time.Hour,
	}
}

// Start runs all scheduled tasks and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.journal != nil && s.cfg.GetJournal().Enabled {
		go s.runJournalCleanupLoop(ctx)
	}

	go s.runStatsCollectionLoop(ctx)

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runJournalCleanupLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.GetJournal().CleanupIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	// Prune once at startup so a long downtime doesn't leave stale rows
	// around until the first tick.
	s.runJournalCleanup()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJournalCleanup()
		}
	}
}

// runJournalCleanup removes journal entries past the retention window.
func (s *Scheduler) runJournalCleanup() {
	days := s.cfg.GetJournal().RetentionDays
	if days < 1 {
		return
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	removed, err := s.journal.Prune(cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("journal cleanup failed")
		return
	}
	log.Debug().
		Int64("removed", removed).
		Int("retention_days", days).
		Msg("journal cleanup completed")
}

func (s *Scheduler) runStatsCollectionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectStats()
		}
	}
}

// collectStats logs the daemon's resource usage.
func (s *Scheduler) collectStats() {
	ps := util.GetProcessStats()
	log.Info().
		Float64("cpu_percent", ps.CPUPercent).
		Str("rss", formatBytes(int64(ps.RSSMB)*1024*1024)).
		Int("goroutines", ps.Goroutines).
		Int64("uptime_sec", ps.UptimeSeconds).
		Msg("process stats")
}

// formatBytes formats bytes into human-readable format.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
