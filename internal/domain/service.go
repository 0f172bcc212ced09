// Package domain implements the usage reconciliation engine: the pure merge
// of a freshly collected snapshot against stored state, and the service that
// orchestrates collection, planning, and the atomic write batch.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrActionRequired is returned when an operation is invoked without an
	// action name.
	ErrActionRequired = errors.New("action name is required")
)

// Collector produces the current usage snapshot for one action. A returned
// error means the census could not be taken at all and nothing may be
// written; a snapshot with Complete=false means the census ran but did not
// finish, which restricts the run to inserts and refreshes.
type Collector interface {
	CollectSnapshot(ctx context.Context, action string) (Snapshot, error)
}

// Store captures the persistence operations the engine needs. Reads happen
// once at the start of a run; ApplyReconciliation commits the whole plan in
// a single transaction or leaves prior state untouched.
type Store interface {
	ReadActiveKeys(ctx context.Context, action string) (map[Key]struct{}, error)
	ReadKnownKeys(ctx context.Context, action string) (map[Key]struct{}, error)
	ApplyReconciliation(ctx context.Context, plan Plan) (RunStats, error)
}

// Option configures optional behaviour for the Tracker.
type Option func(*Tracker)

// WithLogger overrides the logger used to report run progress.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides the time source, used by tests to pin run dates.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker runs reconciliations. Runs for different actions may proceed in
// parallel; runs for the same action are serialized so two interleaved runs
// cannot read the same prior state and double-count transitions.
type Tracker struct {
	collector Collector
	store     Store
	logger    *log.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker constructs a Tracker.
func NewTracker(collector Collector, store Store, opts ...Option) *Tracker {
	t := &Tracker{
		collector: collector,
		store:     store,
		logger:    log.New(log.Writer(), "[tracker] ", log.LstdFlags),
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Reconcile collects the current snapshot for the action and merges it
// against stored state. Collection failures abort the run before any write;
// storage failures roll the whole batch back. Either way prior state remains
// the last known good snapshot.
func (t *Tracker) Reconcile(ctx context.Context, action string) (RunStats, error) {
	if action == "" {
		return RunStats{}, ErrActionRequired
	}

	lock := t.lockFor(action)
	lock.Lock()
	defer lock.Unlock()

	// Runs for different actions interleave in daemon logs; the run id ties
	// a run's lines together.
	runID := uuid.NewString()
	t.logger.Printf("run %s: collecting snapshot for %s", runID, action)

	snap, err := t.collector.CollectSnapshot(ctx, action)
	if err != nil {
		return RunStats{}, fmt.Errorf("collect snapshot for %s: %w", action, err)
	}
	if !snap.Complete {
		t.logger.Printf("run %s: snapshot for %s is incomplete (%d usages found); deactivations suppressed this run", runID, action, snap.Size())
	}

	active, err := t.store.ReadActiveKeys(ctx, action)
	if err != nil {
		return RunStats{}, fmt.Errorf("read active keys for %s: %w", action, err)
	}
	known, err := t.store.ReadKnownKeys(ctx, action)
	if err != nil {
		return RunStats{}, fmt.Errorf("read known keys for %s: %w", action, err)
	}

	plan := BuildPlan(action, snap, PriorState{Known: known, Active: active}, t.now())

	stats, err := t.store.ApplyReconciliation(ctx, plan)
	if err != nil {
		return RunStats{}, fmt.Errorf("apply reconciliation for %s: %w", action, err)
	}

	t.logger.Printf("run %s: reconciled %s: %d active, %d new, %d updated, %d removed", runID, action, stats.TotalActive, stats.New, stats.Updated, stats.Removed)
	return stats, nil
}

func (t *Tracker) lockFor(action string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[action]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[action] = lock
	}
	return lock
}
