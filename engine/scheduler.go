package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkarlsen/sitealarm/internal/logger"
	"github.com/mkarlsen/sitealarm/internal/metrics"
	"github.com/mkarlsen/sitealarm/rules"
)

// DefaultInterval is the evaluation cadence when none is configured.
const DefaultInterval = 300 * time.Second

// Store is the persistence surface the evaluation loop needs. The full
// authoring CRUD lives in rules.Store; the scheduler only reads tick
// snapshots, writes evaluation state and resolves display labels.
type Store interface {
	TickSnapshot() ([]*rules.Rule, map[string]*float64, error)
	UpdateEvalState(id string, at time.Time, status rules.Status, payload *rules.Snapshot, fired bool) error
	Labels(id string) (*rules.HierarchyLabels, error)
}

// Scheduler runs the periodic evaluation loop: every tick it loads a
// consistent snapshot of enabled rules and telemetry, recomputes every
// rule's state, persists the results, and emits an alarm event for each
// transition into alarm. One bad rule or one store hiccup never stops
// the loop.
type Scheduler struct {
	store       Store
	historian   Historian
	broadcaster Broadcaster

	interval atomic.Int64 // nanoseconds, hot-swappable
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates a scheduler with the given dependencies. A zero
// or negative interval falls back to DefaultInterval.
func NewScheduler(store Store, historian Historian, broadcaster Broadcaster, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		store:       store,
		historian:   historian,
		broadcaster: broadcaster,
		now:         time.Now,
	}
	s.interval.Store(int64(interval))
	return s
}

// SetInterval changes the tick cadence. The new interval applies from the
// next tick; config hot-reload calls this at runtime.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.interval.Store(int64(d))
}

// Start launches the background evaluation loop. It ticks once
// immediately, then on the configured cadence until the context is
// cancelled or Stop is called. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
}

// Stop cancels the loop and waits for the current tick to wind down.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	logger.Info("evaluation loop started", "interval", time.Duration(s.interval.Load()).String())
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("evaluation loop stopped")
			return
		case <-timer.C:
		}

		if err := s.RunOnce(ctx); err != nil {
			// Tick-level failure: log and keep monitoring. Rule states
			// stay stale for one cycle instead of crashing the loop.
			logger.Error("evaluation tick failed", "error", err)
		}

		timer.Reset(time.Duration(s.interval.Load()))
	}
}

// RunOnce performs one full evaluation pass over all enabled rules. The
// authoring path calls this synchronously after persisting a validated
// rule so changes are reflected without waiting for the next tick.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()
	ruleList, readings, err := s.store.TickSnapshot()
	if err != nil {
		return fmt.Errorf("tick snapshot: %w", err)
	}

	metrics.TicksTotal.Inc()
	for _, rule := range ruleList {
		if ctx.Err() != nil {
			// Cooperative cancellation mid-tick: already-persisted
			// updates stand, the rest of the pass is abandoned.
			return ctx.Err()
		}
		s.evaluateRule(rule, readings)
	}
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	return nil
}

// evaluateRule computes and persists one rule's state, emitting an alarm
// event on the transition edge into alarm. Per-rule failures are logged
// and absorbed so the rest of the tick proceeds.
func (s *Scheduler) evaluateRule(rule *rules.Rule, readings map[string]*float64) {
	now := s.now()
	prev := rule.LastStatus
	status, detail, snap := Compute(rule, readings, now)
	metrics.RuleEvaluations.WithLabelValues(string(status)).Inc()

	if status == rules.StatusError {
		logger.Warn("rule evaluation error", "rule_id", rule.ID, "detail", detail)
	}

	fired := status == rules.StatusAlarm
	if err := s.store.UpdateEvalState(rule.ID, now, status, snap, fired); err != nil {
		logger.Error("failed to persist evaluation state", "rule_id", rule.ID, "error", err)
		return
	}

	if status == rules.StatusAlarm && prev != rules.StatusAlarm {
		s.emitAlarm(rule, snap, now)
	}
}

// emitAlarm writes one historian record and one broadcast for a
// transition into alarm. Historian and broadcast failures are logged
// independently; neither blocks the other.
func (s *Scheduler) emitAlarm(rule *rules.Rule, snap *rules.Snapshot, now time.Time) {
	labels, err := s.store.Labels(rule.ID)
	if err != nil {
		logger.Warn("failed to resolve hierarchy labels", "rule_id", rule.ID, "error", err)
		labels = &rules.HierarchyLabels{}
	}

	event := newAlarmEvent(rule, labels, snap, now)
	metrics.AlarmsEmitted.Inc()
	logger.Info("alarm triggered", "rule_id", rule.ID, "severity", rule.Severity, "category", rule.Category)

	if s.historian != nil {
		if err := s.historian.Record(event); err != nil {
			logger.Error("failed to record alarm history", "rule_id", rule.ID, "error", err)
		} else {
			metrics.HistorianWrites.Inc()
		}
	}
	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(event, event.SOWID); err != nil {
			logger.Error("failed to broadcast alarm", "rule_id", rule.ID, "error", err)
		}
	}
}
