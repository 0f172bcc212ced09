// Package scheduler runs periodic reconciliations and traffic sweeps for
// the daemon mode.
package scheduler

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/rossturk/github-traffic-grabber/internal/domain"
)

type reconcileRunner interface {
	Reconcile(ctx context.Context, action string) (domain.RunStats, error)
}

type trafficUpdater interface {
	UpdateAll(ctx context.Context) (int, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the logger used to report sweep outcomes.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler reconciles every configured action on an interval. Waits
// between sweeps are jittered by up to ten percent. One action failing does
// not stop the others.
type Scheduler struct {
	tracker          reconcileRunner
	actions          []string
	interval         time.Duration
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// New constructs a Scheduler.
func New(tracker reconcileRunner, actions []string, interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		tracker:          tracker,
		actions:          actions,
		interval:         interval,
		logger:           log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the reconcile loop. It should be called in a goroutine.
// The first sweep runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.shutdownComplete)

	for {
		s.runOnce(ctx)

		timer := time.NewTimer(jittered(s.interval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// jittered spreads an interval by up to ten percent in either direction.
func jittered(interval time.Duration) time.Duration {
	j := 1 + ((rand.Float64()*2 - 1) * 0.10)
	return time.Duration(j * float64(interval))
}

// Wait blocks until the loop has stopped.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}

func (s *Scheduler) runOnce(ctx context.Context) {
	for _, action := range s.actions {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		stats, err := s.tracker.Reconcile(ctx, action)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Printf("reconcile %s failed: %v", action, err)
			recordRun(action, "error", time.Since(start))
			continue
		}
		recordRun(action, "ok", time.Since(start))
		s.logger.Printf("reconciled %s: %d active, %d new, %d updated, %d removed",
			action, stats.TotalActive, stats.New, stats.Updated, stats.Removed)
	}
}

// TrafficSweeper refreshes traffic data for every accessible repository on
// its own interval.
type TrafficSweeper struct {
	service          trafficUpdater
	interval         time.Duration
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewTrafficSweeper constructs a TrafficSweeper.
func NewTrafficSweeper(service trafficUpdater, interval time.Duration, opts ...SweeperOption) *TrafficSweeper {
	t := &TrafficSweeper{
		service:          service,
		interval:         interval,
		logger:           log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SweeperOption configures a TrafficSweeper.
type SweeperOption func(*TrafficSweeper)

// WithSweeperLogger overrides the logger used to report sweep outcomes.
func WithSweeperLogger(logger *log.Logger) SweeperOption {
	return func(t *TrafficSweeper) {
		t.logger = logger
	}
}

// Start launches the sweep loop. It should be called in a goroutine.
func (t *TrafficSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer func() {
		ticker.Stop()
		close(t.shutdownComplete)
	}()

	for {
		start := time.Now()
		updated, err := t.service.UpdateAll(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Printf("traffic sweep: %v", err)
			recordSweep("error", time.Since(start))
		} else if err == nil {
			t.logger.Printf("traffic sweep updated %d repositories", updated)
			recordSweep("ok", time.Since(start))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the loop has stopped.
func (t *TrafficSweeper) Wait() {
	<-t.shutdownComplete
}
