package rules

import (
	"testing"
	"time"
)

func fp(v float64) *float64 { return &v }

func newRule(id string, enabled bool) *Rule {
	return &Rule{
		ID:        id,
		Category:  "concrete",
		Condition: "pour_temp < 30",
		Severity:  SeverityWarning,
		Message:   "pour temperature too high",
		Enabled:   enabled,
	}
}

func TestInMemoryStoreAddGet(t *testing.T) {
	store := NewInMemoryStore()
	rule := newRule("r1", true)

	if err := store.Add(rule); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(newRule("r1", true)); err == nil {
		t.Error("adding a duplicate ID should fail")
	}

	got, err := store.Get("r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Condition != "pour_temp < 30" {
		t.Errorf("condition = %q, want original", got.Condition)
	}
	if got.LastStatus != StatusUnknown {
		t.Errorf("last status = %q, want unknown before first evaluation", got.LastStatus)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("Add should stamp created_at and updated_at")
	}

	if _, err := store.Get("missing"); err == nil {
		t.Error("Get of a missing rule should fail")
	}
}

func TestInMemoryStoreListEnabled(t *testing.T) {
	store := NewInMemoryStore()
	for _, r := range []*Rule{newRule("r1", true), newRule("r2", false), newRule("r3", true)} {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d rules, want 3", len(all))
	}

	enabled, err := store.ListEnabled()
	if err != nil {
		t.Fatalf("ListEnabled failed: %v", err)
	}
	if len(enabled) != 2 {
		t.Errorf("ListEnabled returned %d rules, want 2", len(enabled))
	}
	for _, r := range enabled {
		if !r.Enabled {
			t.Errorf("rule %s is disabled but listed as enabled", r.ID)
		}
	}
}

func TestInMemoryStoreUpdatePreservesEvalState(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Add(newRule("r1", true)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	at := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{Status: StatusAlarm, Evaluated: "pour_temp < 30"}
	if err := store.UpdateEvalState("r1", at, StatusAlarm, snap, true); err != nil {
		t.Fatalf("UpdateEvalState failed: %v", err)
	}

	edited := newRule("r1", true)
	edited.Condition = "pour_temp < 28"
	edited.LastStatus = StatusOK // authoring callers cannot reset eval state
	if err := store.Update(edited); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.Get("r1")
	if got.Condition != "pour_temp < 28" {
		t.Errorf("condition = %q, want updated value", got.Condition)
	}
	if got.LastStatus != StatusAlarm {
		t.Errorf("last status = %q, want alarm preserved across Update", got.LastStatus)
	}
	if got.LastFiredAt == nil || !got.LastFiredAt.Equal(at) {
		t.Errorf("last_fired_at = %v, want preserved %v", got.LastFiredAt, at)
	}
	if got.LastPayload == nil {
		t.Error("last payload should be preserved across Update")
	}

	if err := store.Update(newRule("missing", true)); err == nil {
		t.Error("updating a missing rule should fail")
	}
}

func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Add(newRule("r1", true)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Delete("r1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("r1"); err == nil {
		t.Error("rule should be gone after Delete")
	}
	if err := store.Delete("r1"); err == nil {
		t.Error("deleting a missing rule should fail")
	}
}

func TestInMemoryStoreUpdateEvalStateFiredSemantics(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Add(newRule("r1", true)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	t1 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateEvalState("r1", t1, StatusOK, &Snapshot{Status: StatusOK}, false); err != nil {
		t.Fatalf("UpdateEvalState failed: %v", err)
	}
	got, _ := store.Get("r1")
	if got.LastFiredAt != nil {
		t.Error("last_fired_at should stay unset when fired is false")
	}
	if got.LastEvaluatedAt == nil || !got.LastEvaluatedAt.Equal(t1) {
		t.Errorf("last_evaluated_at = %v, want %v", got.LastEvaluatedAt, t1)
	}

	t2 := t1.Add(5 * time.Minute)
	if err := store.UpdateEvalState("r1", t2, StatusAlarm, &Snapshot{Status: StatusAlarm}, true); err != nil {
		t.Fatalf("UpdateEvalState failed: %v", err)
	}
	t3 := t2.Add(5 * time.Minute)
	if err := store.UpdateEvalState("r1", t3, StatusAlarm, &Snapshot{Status: StatusAlarm}, true); err != nil {
		t.Fatalf("UpdateEvalState failed: %v", err)
	}

	got, _ = store.Get("r1")
	if got.LastFiredAt == nil || !got.LastFiredAt.Equal(t3) {
		t.Errorf("last_fired_at = %v, want refreshed to %v", got.LastFiredAt, t3)
	}

	if err := store.UpdateEvalState("missing", t1, StatusOK, nil, false); err == nil {
		t.Error("updating eval state of a missing rule should fail")
	}
}

func TestInMemoryStoreTickSnapshot(t *testing.T) {
	store := NewInMemoryStore()
	if err := store.Add(newRule("r1", true)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(newRule("r2", false)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	store.SetReading("pour_temp", fp(22))
	store.SetReading("wind_speed", nil)

	ruleList, readings, err := store.TickSnapshot()
	if err != nil {
		t.Fatalf("TickSnapshot failed: %v", err)
	}
	if len(ruleList) != 1 || ruleList[0].ID != "r1" {
		t.Errorf("snapshot rules = %v, want only the enabled r1", ruleList)
	}
	if v := readings["pour_temp"]; v == nil || *v != 22 {
		t.Errorf("pour_temp reading = %v, want 22", v)
	}
	if v, present := readings["wind_speed"]; !present || v != nil {
		t.Errorf("wind_speed = %v (present=%v), want explicit null reading", v, present)
	}

	// The snapshot is a copy: later writes do not leak into it.
	store.SetReading("pour_temp", fp(40))
	if *readings["pour_temp"] != 22 {
		t.Error("snapshot readings should not see later writes")
	}
}

func TestInMemoryStoreLabels(t *testing.T) {
	store := NewInMemoryStore()
	opID := "op-7"
	withOp := newRule("r1", true)
	withOp.OperationID = &opID
	if err := store.Add(withOp); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Add(newRule("r2", true)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	store.SetLabels(opID, HierarchyLabels{SOWID: "SOW-12", StageName: "foundation"})

	labels, err := store.Labels("r1")
	if err != nil {
		t.Fatalf("Labels failed: %v", err)
	}
	if labels.SOWID != "SOW-12" || labels.StageName != "foundation" {
		t.Errorf("labels = %+v, want seeded hierarchy", labels)
	}

	empty, err := store.Labels("r2")
	if err != nil {
		t.Fatalf("Labels failed: %v", err)
	}
	if *empty != (HierarchyLabels{}) {
		t.Errorf("labels = %+v, want empty for a rule without an operation", empty)
	}

	if _, err := store.Labels("missing"); err == nil {
		t.Error("Labels of a missing rule should fail")
	}
}
