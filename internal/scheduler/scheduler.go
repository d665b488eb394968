package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc runs one dispatch pass. A returned error is logged; the loop
// keeps going.
type TickFunc func(ctx context.Context) error

// Status is a snapshot of the loop for the operator surface.
type Status struct {
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"interval"`
	Ticks     int64         `json:"ticks"`
	LastTick  *time.Time    `json:"lastTick,omitempty"`
	LastError string        `json:"lastError,omitempty"`
}

// Scheduler runs a TickFunc immediately on Start and then on every interval
// until Stop. Ticks never overlap: the next one starts only after the
// previous one returned.
type Scheduler struct {
	interval time.Duration
	tickFn   TickFunc
	log      *slog.Logger

	running atomic.Bool
	ticks   atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statMu   sync.Mutex
	lastTick time.Time
	lastErr  string
}

func New(interval time.Duration, tickFn TickFunc) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	return &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) WithLogger(l *slog.Logger) *Scheduler {
	s.log = l
	return s
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the running tick and waits for it to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Status() Status {
	s.statMu.Lock()
	defer s.statMu.Unlock()

	st := Status{
		Running:   s.running.Load(),
		Interval:  s.interval,
		Ticks:     s.ticks.Load(),
		LastError: s.lastErr,
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	err := s.runTick(ctx)

	s.ticks.Add(1)
	s.statMu.Lock()
	s.lastTick = start
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.statMu.Unlock()

	if err != nil {
		s.log.Error("scheduler tick failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.log.Debug("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}

func (s *Scheduler) runTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return s.tickFn(ctx)
}
