package engine

import (
	"strings"
	"time"

	"github.com/mkarlsen/sitealarm/rules"
)

// BuildContext assembles the variable context a rule's condition is
// evaluated against: the current telemetry readings, the current month,
// and the rule's static and time-derived metadata overrides.
func BuildContext(meta rules.Metadata, readings map[string]*float64, now time.Time) map[string]any {
	ctx := make(map[string]any, len(readings)+len(meta.Context)+3)
	for source, value := range readings {
		if value != nil {
			ctx[source] = *value
		} else {
			ctx[source] = nil
		}
	}

	month := monthAbbrev(now)
	ctx["current_month"] = month

	// Explicit overrides win over telemetry.
	for k, v := range meta.Context {
		ctx[k] = v
	}

	resolveMaxPourTemp(ctx, meta, month)
	resolveCuringDays(ctx, meta, month)
	return ctx
}

// monthAbbrev is the lowercase three-letter abbreviation of the UTC month.
func monthAbbrev(now time.Time) string {
	return strings.ToLower(now.UTC().Format("Jan"))
}

// resolveMaxPourTemp resolves max_pour_temp from the month-keyed limit
// table, falling back to default_max, then to whatever value is already
// present in the context.
func resolveMaxPourTemp(ctx map[string]any, meta rules.Metadata, month string) {
	if len(meta.MaxByMonth) == 0 {
		return
	}
	if v, ok := meta.MaxByMonth[month]; ok {
		ctx["max_pour_temp"] = v
		return
	}
	if meta.DefaultMax != nil {
		ctx["max_pour_temp"] = *meta.DefaultMax
	}
}

// resolveCuringDays classifies the current month as warm or cold and
// resolves required_curing_days from the seasonal duration table. The
// first non-missing of durations[season], durations["default"],
// durations["cold"], durations["warm"] wins.
func resolveCuringDays(ctx map[string]any, meta rules.Metadata, month string) {
	if len(meta.SeasonalDurations) == 0 {
		return
	}
	season := "cold"
	for _, warm := range meta.WarmMonths {
		if strings.EqualFold(warm, month) {
			season = "warm"
			break
		}
	}
	for _, key := range []string{season, "default", "cold", "warm"} {
		if v, ok := meta.SeasonalDurations[key]; ok {
			ctx["required_curing_days"] = v
			return
		}
	}
}
