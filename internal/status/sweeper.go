// internal/status/sweeper.go
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for the background tasks
const (
	DefaultSweepInterval     = time.Minute
	DefaultOfflineThreshold  = 10 * time.Minute
	DefaultCleanupInterval   = time.Hour
	DefaultSnapshotRetention = 7 * 24 * time.Hour
)

// SweeperConfig controls the background maintenance tasks
type SweeperConfig struct {
	SweepInterval     time.Duration
	OfflineThreshold  time.Duration
	CleanupInterval   time.Duration
	SnapshotRetention time.Duration
}

func (c *SweeperConfig) applyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.OfflineThreshold <= 0 {
		c.OfflineThreshold = DefaultOfflineThreshold
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.SnapshotRetention <= 0 {
		c.SnapshotRetention = DefaultSnapshotRetention
	}
}

// Sweeper runs the offline sweep and snapshot cleanup on independent schedules
type Sweeper struct {
	deriver *Deriver
	cfg     SweeperConfig
}

// NewSweeper creates a sweeper; zero config fields take the defaults
func NewSweeper(d *Deriver, cfg SweeperConfig) *Sweeper {
	cfg.applyDefaults()
	return &Sweeper{deriver: d, cfg: cfg}
}

// Run blocks until ctx is cancelled. A failing task is logged and retried on its next tick.
func (s *Sweeper) Run(ctx context.Context) {
	log.Info().
		Dur("sweep_interval", s.cfg.SweepInterval).
		Dur("offline_threshold", s.cfg.OfflineThreshold).
		Dur("cleanup_interval", s.cfg.CleanupInterval).
		Msg("status sweeper starting")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		every(ctx, s.cfg.SweepInterval, s.sweep)
	}()
	go func() {
		defer wg.Done()
		every(ctx, s.cfg.CleanupInterval, s.cleanup)
	}()
	wg.Wait()
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.deriver.SweepOffline(ctx, s.cfg.OfflineThreshold)
	if err != nil {
		log.Error().Err(err).Msg("offline sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("marked endpoints offline")
	}
}

func (s *Sweeper) cleanup(ctx context.Context) {
	n, err := s.deriver.CleanupSnapshots(ctx, s.cfg.SnapshotRetention)
	if err != nil {
		log.Error().Err(err).Msg("snapshot cleanup failed")
		return
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("deleted old snapshots")
	}
}

// every runs fn on each tick of interval until ctx is done
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
