package engine

import (
	"time"

	"github.com/mkarlsen/sitealarm/condition"
	"github.com/mkarlsen/sitealarm/rules"
)

// Compute runs one rule's condition against the telemetry readings and
// classifies the outcome. The condition expresses the healthy state, so a
// truthy result is "ok" and a falsy result is "alarm". An evaluation
// failure is "error": the rule is visible to operators but does not
// alarm, and the failure message becomes the snapshot detail.
func Compute(rule *rules.Rule, readings map[string]*float64, now time.Time) (rules.Status, string, *rules.Snapshot) {
	ctx := BuildContext(rule.Metadata, readings, now)

	var status rules.Status
	var detail string
	ok, err := condition.Evaluate(rule.Condition, ctx)
	switch {
	case err != nil:
		status = rules.StatusError
		detail = err.Error()
	case ok:
		status = rules.StatusOK
	default:
		status = rules.StatusAlarm
	}

	snap := &rules.Snapshot{
		Status:    status,
		Evaluated: rule.Condition,
		Context:   snapshotContext(ctx, rule.Metadata.RequiredInputs),
		Timestamp: now.UTC().Format(time.RFC3339),
		Detail:    detail,
	}
	return status, detail, snap
}

// snapshotContext keeps the audit payload bounded: only the inputs the
// rule names are recorded, not the full telemetry dump. Inputs missing
// from the context are recorded as null so the payload shows exactly what
// the condition saw.
func snapshotContext(ctx map[string]any, requiredInputs []string) map[string]any {
	out := make(map[string]any, len(requiredInputs))
	for _, name := range requiredInputs {
		out[name] = ctx[name]
	}
	return out
}
