package storage

import (
	"Muse/lib/sl"
	"log/slog"
	"sync"
	"time"
)

// Sweeper periodically drops seed memory entries older than maxAge
type Sweeper struct {
	memory   SeedMemory
	maxAge   time.Duration
	interval time.Duration
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(memory SeedMemory, maxAge, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		memory:   memory,
		maxAge:   maxAge,
		interval: interval,
		log:      log.With(sl.Module("sweeper")),
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop; it does nothing when maxAge or interval is zero
func (s *Sweeper) Start() {
	if s.maxAge <= 0 || s.interval <= 0 {
		s.log.Debug("stale memory sweep disabled")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("stale memory sweep started",
			slog.Duration("interval", s.interval),
			slog.Duration("max_age", s.maxAge))

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				s.log.Info("stale memory sweep stopped")
				return
			}
		}
	}()
}

func (s *Sweeper) Sweep() int {
	removed := s.memory.ClearStale(s.maxAge)
	if removed > 0 {
		s.log.Info("stale memory entries removed", slog.Int("count", removed))
	}
	return removed
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
