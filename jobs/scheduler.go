package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry schedules one job.
type Entry struct {
	Run      Func
	Name     string
	Interval time.Duration
}

// Scheduler runs each entry on its own ticker until the context ends.
type Scheduler struct {
	log     *zap.Logger
	entries []Entry
}

// NewScheduler keeps the entries with a positive interval.
func NewScheduler(log *zap.Logger, entries ...Entry) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{log: log.Named("scheduler")}
	for _, e := range entries {
		if e.Interval <= 0 {
			s.log.Info("job disabled", zap.String("job", e.Name))
			continue
		}
		s.entries = append(s.entries, e)
	}
	return s
}

// Entries returns the enabled entries.
func (s *Scheduler) Entries() []Entry { return s.entries }

// Run blocks until ctx is done and every job goroutine has returned.
// A failing run is logged and the job keeps its schedule.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			ticker := time.NewTicker(e.Interval)
			defer ticker.Stop()
			s.log.Info("job scheduled", zap.String("job", e.Name), zap.Duration("every", e.Interval))
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runOnce(ctx, e)
				}
			}
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) runOnce(ctx context.Context, e Entry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", zap.String("job", e.Name), zap.Any("panic", r))
		}
	}()
	start := time.Now()
	if err := e.Run(ctx); err != nil {
		s.log.Warn("job failed", zap.String("job", e.Name), zap.Error(err))
		return
	}
	s.log.Debug("job finished", zap.String("job", e.Name), zap.Duration("elapsed", time.Since(start)))
}
