// Package scheduler runs housekeeping on a wall-clock trigger.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aman-churiwal/crm-gateway/internal/metrics"
)

const (
	DefaultInterval = 60 * time.Minute
	DefaultHour     = 4
)

// Finalizer closes attendance records left open past midnight. It must be idempotent.
type Finalizer interface {
	AutoFinalizeOrphanedAttendance(ctx context.Context) (int64, error)
}

type Config struct {
	Interval time.Duration // poll cadence, default 60 minutes
	Hour     int           // local hour to fire at, default 4
	// RunAtBoot finalizes once immediately; enabled in development.
	RunAtBoot bool
	Timeout   time.Duration // per-run deadline, default 5 minutes
	Now       func() time.Time
	// Ticks replaces the ticker, for tests. Ignored when nil.
	Ticks <-chan time.Time
}

// Scheduler polls the local hour and invokes the finalizer once per day when it
// matches the configured hour.
type Scheduler struct {
	finalizer Finalizer
	log       *zap.SugaredLogger
	cfg       Config

	mu       sync.Mutex
	lastFire string // "2006-01-02" of the last run at the target hour
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

func New(finalizer Finalizer, log *zap.SugaredLogger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Hour < 0 || cfg.Hour > 23 {
		cfg.Hour = DefaultHour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		finalizer: finalizer,
		log:       log.Named("scheduler"),
		cfg:       cfg,
	}
}

// Start launches the poller and returns at once; the boot run happens on the
// poller goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Infow("Attendance scheduler started", "interval", s.cfg.Interval.String(), "hour", s.cfg.Hour)

	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.done)

	if s.cfg.RunAtBoot {
		s.run("boot")
	}

	ticks := s.cfg.Ticks
	if ticks == nil {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ticks:
			s.Tick()
		case <-s.stopChan:
			return
		}
	}
}

// Stop ends the poller and waits for an in-progress run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Infow("Attendance scheduler stopped")
}

// Tick evaluates one poll. It reports whether the finalizer ran.
func (s *Scheduler) Tick() bool {
	now := s.cfg.Now()
	if now.Hour() != s.cfg.Hour {
		return false
	}

	day := now.Format(time.DateOnly)
	s.mu.Lock()
	if s.lastFire == day {
		s.mu.Unlock()
		return false
	}
	s.lastFire = day
	s.mu.Unlock()

	s.run("schedule")
	return true
}

func (s *Scheduler) run(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	s.log.Infow("Running auto-finalization of orphaned attendance", "trigger", trigger)
	closed, err := s.finalizer.AutoFinalizeOrphanedAttendance(ctx)
	if err != nil {
		s.log.Errorw("Auto-finalization failed", "trigger", trigger, "error", err)
		return
	}
	metrics.AttendanceFinalized.Add(float64(closed))
	s.log.Infow("Auto-finalization complete", "trigger", trigger, "closed", closed)
}
