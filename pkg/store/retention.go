package store

import (
	"context"
	"sync"
	"time"

	"github.com/psantana5/timinghooks/pkg/logging"
)

// RetentionConfig defines how long snapshots are kept and how often the
// store is swept
type RetentionConfig struct {
	MaxAge         time.Duration // 0 keeps snapshots forever
	Interval       time.Duration
	VacuumInterval time.Duration // only used by stores implementing Vacuumer
}

// DefaultRetentionConfig keeps snapshots for a week
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxAge:         7 * 24 * time.Hour,
		Interval:       time.Hour,
		VacuumInterval: 24 * time.Hour,
	}
}

// Vacuumer is implemented by stores that can reclaim space after deletes
type Vacuumer interface {
	Vacuum() error
}

// RetentionStats tracks sweeps
type RetentionStats struct {
	LastSweep      time.Time
	LastVacuum     time.Time
	TotalDeleted   int64
	TotalVacuums   int64
	LastSweepTook  time.Duration
	LastVacuumTook time.Duration
}

// Retention deletes snapshots older than MaxAge in the background.
type Retention struct {
	config RetentionConfig
	store  Store
	logger *logging.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats RetentionStats
}

// NewRetention creates a retention manager for s
func NewRetention(config RetentionConfig, s Store, logger *logging.Logger) *Retention {
	return &Retention{
		config: config,
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches the sweep loop, and the vacuum loop when the store
// supports it. It does nothing when MaxAge is zero.
func (r *Retention) Start(ctx context.Context) {
	if r.config.MaxAge <= 0 || r.config.Interval <= 0 {
		r.logger.Info("snapshot retention disabled")
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.logger.Info("starting snapshot retention", map[string]interface{}{
		"max_age":  r.config.MaxAge.String(),
		"interval": r.config.Interval.String(),
	})

	r.wg.Add(1)
	go r.loop(ctx, r.config.Interval, func() { r.SweepNow(ctx) })

	if v, ok := r.store.(Vacuumer); ok && r.config.VacuumInterval > 0 {
		r.wg.Add(1)
		go r.loop(ctx, r.config.VacuumInterval, func() { r.vacuum(v) })
	}
}

// Stop ends the background loops and waits for them
func (r *Retention) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retention) loop(ctx context.Context, every time.Duration, fn func()) {
	defer r.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// SweepNow deletes every snapshot created before now minus MaxAge and
// returns how many were removed.
func (r *Retention) SweepNow(ctx context.Context) int {
	start := time.Now()
	cutoff := r.now().Add(-r.config.MaxAge)

	infos, err := r.store.List(ctx)
	if err != nil {
		r.logger.Error("failed to list snapshots for retention", map[string]interface{}{"error": err.Error()})
		return 0
	}

	deleted := 0
	for _, info := range infos {
		if !info.CreatedAt.Before(cutoff) {
			// List is oldest first
			break
		}
		if err := r.store.Delete(ctx, info.ID); err != nil {
			r.logger.Warn("failed to delete expired snapshot", map[string]interface{}{
				"id":    info.ID,
				"error": err.Error(),
			})
			continue
		}
		deleted++
	}

	took := time.Since(start)
	r.mu.Lock()
	r.stats.LastSweep = r.now()
	r.stats.LastSweepTook = took
	r.stats.TotalDeleted += int64(deleted)
	r.mu.Unlock()

	if deleted > 0 {
		r.logger.Info("expired snapshots deleted", map[string]interface{}{
			"deleted":  deleted,
			"duration": took.String(),
		})
	}
	return deleted
}

func (r *Retention) vacuum(v Vacuumer) {
	start := time.Now()
	if err := v.Vacuum(); err != nil {
		r.logger.Error("store vacuum failed", map[string]interface{}{"error": err.Error()})
		return
	}
	took := time.Since(start)

	r.mu.Lock()
	r.stats.LastVacuum = r.now()
	r.stats.LastVacuumTook = took
	r.stats.TotalVacuums++
	r.mu.Unlock()

	r.logger.Debug("store vacuum complete", map[string]interface{}{"duration": took.String()})
}

// Stats returns current retention statistics
func (r *Retention) Stats() RetentionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
