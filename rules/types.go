package rules

import (
	"fmt"
	"time"

	"github.com/mkarlsen/sitealarm/condition"
)

// Status is the tri-state outcome of a rule evaluation, plus the initial
// "unknown" state a rule carries before its first tick.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusOK      Status = "ok"
	StatusAlarm   Status = "alarm"
	StatusError   Status = "error"
)

// Severity labels carried on rules and alarm events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

var validSeverities = map[string]bool{
	SeverityInfo:     true,
	SeverityWarning:  true,
	SeverityCritical: true,
}

// Metadata is the free-form configuration object attached to a rule. It
// carries static context overrides, the list of inputs worth snapshotting,
// and the month-keyed tables the context builder resolves into
// max_pour_temp and required_curing_days.
type Metadata struct {
	Context           map[string]any     `json:"context,omitempty"`
	RequiredInputs    []string           `json:"required_inputs,omitempty"`
	MaxByMonth        map[string]float64 `json:"max_by_month,omitempty"`
	DefaultMax        *float64           `json:"default_max,omitempty"`
	SeasonalDurations map[string]float64 `json:"seasonal_durations,omitempty"`
	WarmMonths        []string           `json:"warm_months,omitempty"`
}

// Rule is an operator-authored alarm condition plus its evaluation state.
// The condition expresses the healthy state: a rule alarms when its
// condition evaluates falsy.
type Rule struct {
	ID          string
	Category    string
	Condition   string
	Severity    string
	Message     string
	Action      string
	Enabled     bool
	Metadata    Metadata
	OperationID *string // optional process-hierarchy association, display only

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	LastEvaluatedAt *time.Time
	LastStatus      Status
	LastPayload     *Snapshot
	LastFiredAt     *time.Time
}

// Snapshot is the auditable record of one evaluation of one rule. It is
// persisted verbatim into last_payload and overwritten wholesale on the
// next tick.
type Snapshot struct {
	Status    Status         `json:"status"`
	Evaluated string         `json:"evaluated"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
	Detail    string         `json:"detail,omitempty"`
}

// HierarchyLabels are the display names joined from the process hierarchy
// for alarm payloads. All fields are empty when the rule has no
// operation association.
type HierarchyLabels struct {
	SOWID         string
	StageName     string
	OperationName string
	ContractName  string
	ProjectName   string
}

// ValidateRule checks a rule definition before it is persisted. The
// condition goes through static expression validation, so an unvalidated
// condition never reaches storage.
func ValidateRule(r *Rule) error {
	if r.Condition == "" {
		return fmt.Errorf("rule condition cannot be empty")
	}
	if err := condition.Validate(r.Condition); err != nil {
		return err
	}
	if r.Category == "" {
		return fmt.Errorf("rule category cannot be empty")
	}
	if !validSeverities[r.Severity] {
		return fmt.Errorf("invalid severity %q (must be one of: info, warning, critical)", r.Severity)
	}
	return nil
}
