// Package engine turns telemetry snapshots into rule state transitions.
// It builds the variable context for each rule, classifies evaluation
// outcomes into a tri-state status, and runs the periodic loop that
// persists results and emits edge-triggered alarm events.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/mkarlsen/sitealarm/rules"
)

// EventAlarmTriggered is the event discriminator on every broadcast
// alarm payload. Dashboards key on this field, so it is part of the wire
// contract.
const EventAlarmTriggered = "alarm_triggered"

// AlarmEvent is created once per transition into alarm. It is written to
// the historian and broadcast to subscribers exactly once; it is never
// retried or deduplicated beyond the edge trigger itself.
type AlarmEvent struct {
	Event         string          `json:"event"`
	ID            string          `json:"id"`
	RuleID        string          `json:"rule_id"`
	Severity      string          `json:"severity"`
	Message       string          `json:"message"`
	Category      string          `json:"category"`
	SOWID         string          `json:"sow_id"`
	StageName     string          `json:"stage_name"`
	OperationName string          `json:"operation_name"`
	ContractName  string          `json:"contract_name"`
	ProjectName   string          `json:"project_name"`
	Payload       *rules.Snapshot `json:"payload"`
	Timestamp     string          `json:"timestamp"`
}

// newAlarmEvent assembles the broadcast/historian payload for one
// transition into alarm.
func newAlarmEvent(rule *rules.Rule, labels *rules.HierarchyLabels, snap *rules.Snapshot, now time.Time) *AlarmEvent {
	ev := &AlarmEvent{
		Event:     EventAlarmTriggered,
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		Severity:  rule.Severity,
		Message:   rule.Message,
		Category:  rule.Category,
		Payload:   snap,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if labels != nil {
		ev.SOWID = labels.SOWID
		ev.StageName = labels.StageName
		ev.OperationName = labels.OperationName
		ev.ContractName = labels.ContractName
		ev.ProjectName = labels.ProjectName
	}
	return ev
}

// Historian is the append-only audit sink for alarm transitions.
type Historian interface {
	Record(event *AlarmEvent) error
}

// Broadcaster pushes alarm events to live subscriber connections. The
// scope key limits delivery to subscribers tagged with the same scope;
// untagged subscribers receive everything.
type Broadcaster interface {
	Broadcast(payload any, scopeKey string) error
}
