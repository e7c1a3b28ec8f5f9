// Package metrics holds the Prometheus collectors for the alarm engine,
// served on /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitealarm_ticks_total",
		Help: "Total number of completed evaluation passes.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sitealarm_tick_duration_seconds",
		Help:    "Duration of one full evaluation pass in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitealarm_rule_evaluations_total",
		Help: "Total number of rule evaluations, labelled by resulting status.",
	}, []string{"status"})

	AlarmsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitealarm_alarms_emitted_total",
		Help: "Total number of alarm events emitted on transition into alarm.",
	})

	HistorianWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitealarm_historian_writes_total",
		Help: "Total number of alarm-history rows appended.",
	})

	BroadcastClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sitealarm_broadcast_subscribers",
		Help: "Current number of live dashboard subscriber connections.",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitealarm_broadcast_failures_total",
		Help: "Total number of subscriber delivery failures (each prunes one connection).",
	})
)
