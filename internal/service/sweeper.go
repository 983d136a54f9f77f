package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/logger"
)

// SweeperConfig controls the expiry sweeper.
type SweeperConfig struct {
	Interval   time.Duration // time between sweeps
	BatchSize  int           // rows deleted per statement
	MaxBatches int           // statements per sweep before yielding to the next tick
}

// DefaultSweeperConfig returns the production defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   30 * time.Second,
		BatchSize:  500,
		MaxBatches: 20,
	}
}

// Sweeper periodically deletes expired seat locks.  Read paths already
// ignore expired rows, so the sweeper only reclaims space; a late or
// skipped sweep never makes a seat look locked.
type Sweeper struct {
	store LockStore
	cfg   SweeperConfig
	log   *logger.Logger
	now   func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper over store.  Zero config fields take the
// defaults.
func NewSweeper(store LockStore, cfg SweeperConfig, log *logger.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = def.MaxBatches
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		done:  make(chan struct{}),
	}
}

// WithClock replaces the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start runs the sweep loop in a goroutine until ctx is cancelled or Stop
// is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.log.Info("lock sweeper started", "interval", s.cfg.Interval, "batch", s.cfg.BatchSize)
		for {
			select {
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
					s.log.Error("lock sweep failed", "error", err)
				}
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.  It is
// safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	s.log.Info("lock sweeper stopped")
}

// SweepOnce deletes expired locks in batches until a batch comes back
// short or MaxBatches is reached, and returns the total removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for i := 0; i < s.cfg.MaxBatches; i++ {
		n, err := s.store.SweepExpired(ctx, now, s.cfg.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(s.cfg.BatchSize) {
			break
		}
	}
	if total > 0 {
		s.log.Debug("expired seat locks swept", "count", total)
	}
	return total, nil
}
