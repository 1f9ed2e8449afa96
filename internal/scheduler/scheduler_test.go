package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starx-project/starx/internal/config"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) Prune(cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, p.err
}

func (p *fakePruner) calls() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.cutoffs...)
}

func TestJournalCleanupCutoff(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Journal.RetentionDays = 3

	p := &fakePruner{}
	s := NewScheduler(cfg, p)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.runJournalCleanup()

	got := p.calls()
	if len(got) != 1 {
		t.Fatalf("Prune called %d times, want 1", len(got))
	}
	if want := now.Add(-72 * time.Hour); !got[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", got[0], want)
	}

	// Errors are logged, not fatal.
	p.err = errors.New("disk full")
	s.runJournalCleanup()
	if len(p.calls()) != 2 {
		t.Error("second cleanup did not run")
	}
}

func TestStartPrunesImmediatelyAndStops(t *testing.T) {
	cfg := config.DefaultConfig()
	p := &fakePruner{}
	s := NewScheduler(cfg, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(p.calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("journal not pruned at startup")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStartWithoutJournal(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
