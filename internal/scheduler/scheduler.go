// Package scheduler owns the periodic triggers: catalog refresh, stall
// sweep, disk-pressure sweep and the daily cleanup.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

const (
	stallSweepEvery = 5 * time.Minute
	diskSweepEvery  = 6 * time.Hour
)

// Refresher triggers one catalog poll cycle. The aggregator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
}

// Cleaner runs the garbage-collection sweeps. The sweeper satisfies it.
type Cleaner interface {
	Daily()
	Stall()
	DiskPressure()
}

// Scheduler fires the periodic work until its context is cancelled.
type Scheduler struct {
	refresher Refresher
	cleaner   Cleaner
	interval  time.Duration
	log       *slog.Logger
}

func New(refresher Refresher, cleaner Cleaner, refreshInterval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		cleaner:   cleaner,
		interval:  refreshInterval,
		log:       log,
	}
}

// Run blocks until ctx is cancelled. One refresh runs immediately at
// startup; after that each trigger fires on its own ticker. A refresh tick
// that lands while the prior refresh is still running is dropped.
func (s *Scheduler) Run(ctx context.Context) {
	go s.refresh(ctx)

	refreshTicker := time.NewTicker(s.interval)
	defer refreshTicker.Stop()
	stallTicker := time.NewTicker(stallSweepEvery)
	defer stallTicker.Stop()
	diskTicker := time.NewTicker(diskSweepEvery)
	defer diskTicker.Stop()

	daily := time.NewTimer(untilNextMidnight(time.Now()))
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refreshTicker.C:
			go s.refresh(ctx)
		case <-stallTicker.C:
			s.cleaner.Stall()
		case <-diskTicker.C:
			s.cleaner.DiskPressure()
		case <-daily.C:
			s.cleaner.Daily()
			daily.Reset(untilNextMidnight(time.Now()))
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	if _, err := s.refresher.Refresh(ctx); err != nil {
		if errors.Is(err, catalog.ErrRefreshInFlight) {
			s.log.Warn("Skipping refresh tick, prior refresh still running")
			return
		}
		if ctx.Err() == nil {
			s.log.Error("Catalog refresh failed", "error", err)
		}
	}
}

// untilNextMidnight returns the wait until the next local midnight.
func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}
