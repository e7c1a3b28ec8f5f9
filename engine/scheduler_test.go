package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkarlsen/sitealarm/rules"
)

type memHistorian struct {
	mu     sync.Mutex
	events []*AlarmEvent
	err    error
}

func (h *memHistorian) Record(event *AlarmEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, event)
	return nil
}

func (h *memHistorian) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type broadcastCall struct {
	payload any
	scope   string
}

type memBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *memBroadcaster) Broadcast(payload any, scopeKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{payload: payload, scope: scopeKey})
	return nil
}

func (b *memBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestScheduler(store *rules.InMemoryStore) (*Scheduler, *memHistorian, *memBroadcaster, *fakeClock) {
	hist := &memHistorian{}
	bc := &memBroadcaster{}
	clk := &fakeClock{t: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	s := NewScheduler(store, hist, bc, time.Minute)
	s.now = clk.now
	return s, hist, bc, clk
}

func seedRule(t *testing.T, store *rules.InMemoryStore, rule *rules.Rule) {
	t.Helper()
	if err := store.Add(rule); err != nil {
		t.Fatalf("failed to seed rule: %v", err)
	}
}

func TestRunOnceAlarmTransitionEmitsOneEvent(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(35))
	seedRule(t, store, testRule(`pour_temp < 30`, rules.Metadata{
		RequiredInputs: []string{"pour_temp"},
	}))
	s, hist, bc, _ := newTestScheduler(store)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if hist.count() != 1 {
		t.Errorf("historian records = %d, want 1", hist.count())
	}
	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1", bc.count())
	}

	got, err := store.Get("rule-1")
	if err != nil {
		t.Fatalf("failed to read back rule: %v", err)
	}
	if got.LastStatus != rules.StatusAlarm {
		t.Errorf("last status = %q, want alarm", got.LastStatus)
	}
	if got.LastFiredAt == nil {
		t.Error("last_fired_at should be stamped on an alarm tick")
	}
	if got.LastPayload == nil || got.LastPayload.Context["pour_temp"] != 35.0 {
		t.Errorf("last payload context = %+v, want pour_temp 35", got.LastPayload)
	}

	ev := hist.events[0]
	if ev.Event != EventAlarmTriggered {
		t.Errorf("event discriminator = %q, want %q", ev.Event, EventAlarmTriggered)
	}
	if ev.RuleID != "rule-1" || ev.Severity != rules.SeverityWarning {
		t.Errorf("event = %+v, want rule-1 warning", ev)
	}
}

func TestRunOnceSustainedAlarmRefreshesWithoutReEmitting(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(35))
	seedRule(t, store, testRule(`pour_temp < 30`, rules.Metadata{
		RequiredInputs: []string{"pour_temp"},
	}))
	s, hist, bc, clk := newTestScheduler(store)

	for i := 0; i < 4; i++ {
		if err := s.RunOnce(context.Background()); err != nil {
			t.Fatalf("tick %d failed: %v", i, err)
		}
		clk.advance(time.Minute)
	}

	if hist.count() != 1 {
		t.Errorf("historian records = %d, want 1 for a sustained alarm", hist.count())
	}
	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1 for a sustained alarm", bc.count())
	}

	got, _ := store.Get("rule-1")
	firstTick := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	wantFired := firstTick.Add(3 * time.Minute)
	if got.LastFiredAt == nil || !got.LastFiredAt.Equal(wantFired) {
		t.Errorf("last_fired_at = %v, want refreshed to %v", got.LastFiredAt, wantFired)
	}
}

func TestRunOnceReArmAfterRecovery(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(35))
	seedRule(t, store, testRule(`pour_temp < 30`, rules.Metadata{}))
	s, hist, bc, _ := newTestScheduler(store)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("alarm tick failed: %v", err)
	}
	store.SetReading("pour_temp", fp(20))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("recovery tick failed: %v", err)
	}
	got, _ := store.Get("rule-1")
	if got.LastStatus != rules.StatusOK {
		t.Fatalf("last status = %q after recovery, want ok", got.LastStatus)
	}

	store.SetReading("pour_temp", fp(35))
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("re-alarm tick failed: %v", err)
	}

	if hist.count() != 2 {
		t.Errorf("historian records = %d, want 2 after recover-and-realarm", hist.count())
	}
	if bc.count() != 2 {
		t.Errorf("broadcasts = %d, want 2 after recover-and-realarm", bc.count())
	}
}

func TestRunOnceEvaluationErrorNeverAlarms(t *testing.T) {
	store := rules.NewInMemoryStore()
	// pour_temp never reported: ordering against a missing reading fails.
	seedRule(t, store, testRule(`pour_temp < 30`, rules.Metadata{
		RequiredInputs: []string{"pour_temp"},
	}))
	s, hist, bc, _ := newTestScheduler(store)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if hist.count() != 0 || bc.count() != 0 {
		t.Errorf("events = %d/%d, want none for an evaluation error", hist.count(), bc.count())
	}
	got, _ := store.Get("rule-1")
	if got.LastStatus != rules.StatusError {
		t.Errorf("last status = %q, want error", got.LastStatus)
	}
	if got.LastFiredAt != nil {
		t.Error("last_fired_at should stay unset without an alarm")
	}
	if got.LastPayload == nil || got.LastPayload.Detail == "" {
		t.Error("error detail should be recorded in the payload")
	}
}

func TestRunOnceSkipsDisabledRules(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(35))
	rule := testRule(`pour_temp < 30`, rules.Metadata{})
	rule.Enabled = false
	seedRule(t, store, rule)
	s, hist, _, _ := newTestScheduler(store)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if hist.count() != 0 {
		t.Errorf("historian records = %d, want 0 for a disabled rule", hist.count())
	}
	got, _ := store.Get("rule-1")
	if got.LastEvaluatedAt != nil {
		t.Error("disabled rule should not be evaluated")
	}
}

func TestRunOnceAlarmEventCarriesHierarchyLabels(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(35))
	opID := "op-7"
	rule := testRule(`pour_temp < 30`, rules.Metadata{})
	rule.OperationID = &opID
	seedRule(t, store, rule)
	store.SetLabels(opID, rules.HierarchyLabels{
		SOWID:         "SOW-12",
		StageName:     "foundation",
		OperationName: "slab pour",
		ContractName:  "main works",
		ProjectName:   "north quay",
	})
	s, hist, bc, _ := newTestScheduler(store)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if hist.count() != 1 {
		t.Fatalf("historian records = %d, want 1", hist.count())
	}

	ev := hist.events[0]
	if ev.SOWID != "SOW-12" || ev.StageName != "foundation" || ev.ProjectName != "north quay" {
		t.Errorf("event labels = %+v, want seeded hierarchy", ev)
	}
	if bc.calls[0].scope != "SOW-12" {
		t.Errorf("broadcast scope = %q, want SOW-12", bc.calls[0].scope)
	}
}

func TestRunOnceHistorianFailureDoesNotBlockBroadcast(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(35))
	seedRule(t, store, testRule(`pour_temp < 30`, rules.Metadata{}))
	s, hist, bc, _ := newTestScheduler(store)
	hist.err = errors.New("history table unavailable")

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if bc.count() != 1 {
		t.Errorf("broadcasts = %d, want 1 despite historian failure", bc.count())
	}
}

func TestSchedulerStartStop(t *testing.T) {
	store := rules.NewInMemoryStore()
	store.SetReading("pour_temp", fp(20))
	seedRule(t, store, testRule(`pour_temp < 30`, rules.Metadata{}))

	s := NewScheduler(store, &memHistorian{}, &memBroadcaster{}, time.Hour)
	s.Start(context.Background())
	s.Start(context.Background()) // second Start is a no-op

	// The first tick fires immediately; wait for its state write.
	deadline := time.After(2 * time.Second)
	for {
		got, err := store.Get("rule-1")
		if err != nil {
			t.Fatalf("failed to read back rule: %v", err)
		}
		if got.LastStatus == rules.StatusOK {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first tick never ran, last status %q", got.LastStatus)
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop()
	s.Stop() // second Stop is a no-op
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	s := NewScheduler(rules.NewInMemoryStore(), nil, nil, 0)
	if got := time.Duration(s.interval.Load()); got != DefaultInterval {
		t.Errorf("interval = %v, want %v", got, DefaultInterval)
	}
	s.SetInterval(-time.Second)
	if got := time.Duration(s.interval.Load()); got != DefaultInterval {
		t.Errorf("interval after negative SetInterval = %v, want %v", got, DefaultInterval)
	}
	s.SetInterval(30 * time.Second)
	if got := time.Duration(s.interval.Load()); got != 30*time.Second {
		t.Errorf("interval = %v, want 30s", got)
	}
}
