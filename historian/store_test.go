package historian

import (
	"fmt"
	"testing"

	"github.com/mkarlsen/sitealarm/engine"
	"github.com/mkarlsen/sitealarm/rules"
)

func alarmEvent(ruleID string) *engine.AlarmEvent {
	return &engine.AlarmEvent{
		Event:    engine.EventAlarmTriggered,
		RuleID:   ruleID,
		Severity: rules.SeverityCritical,
		Message:  "pour temperature exceeds limit",
		Category: "concrete",
		SOWID:    "SOW-12",
		Payload:  &rules.Snapshot{Status: rules.StatusAlarm, Evaluated: "pour_temp < 30"},
	}
}

func TestInMemoryStoreRecordAndRecent(t *testing.T) {
	store := NewInMemoryStore()

	for i := 0; i < 3; i++ {
		if err := store.Record(alarmEvent(fmt.Sprintf("r%d", i))); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := store.Recent(0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(entries))
	}
	// Most recent first.
	if entries[0].RuleID != "r2" || entries[2].RuleID != "r0" {
		t.Errorf("entries out of order: %s ... %s", entries[0].RuleID, entries[2].RuleID)
	}
	if entries[0].ID == "" {
		t.Error("entries without an event ID should get one assigned")
	}
	if entries[0].Payload == nil || entries[0].Payload.Status != rules.StatusAlarm {
		t.Errorf("payload = %+v, want recorded alarm snapshot", entries[0].Payload)
	}

	limited, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(limited) != 2 || limited[0].RuleID != "r2" {
		t.Errorf("limited entries = %v, want newest 2", limited)
	}
}
