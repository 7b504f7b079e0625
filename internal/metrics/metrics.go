// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package metrics defines the Prometheus collectors shared by sessions and
// pipelines. Collectors are registered on an injected registerer so tests and
// independent hosts never collide on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one host.
type Metrics struct {
	// SettlePasses counts full recomputation passes.
	SettlePasses prometheus.Counter
	// Computations counts compute-function invocations across sessions.
	Computations prometheus.Counter
	// Cutoffs counts stale cells revalidated without recomputation.
	Cutoffs prometheus.Counter
	// Actions counts applied actions by name and outcome status.
	Actions *prometheus.CounterVec
	// ActionDuration tracks how long the worker spends on one action.
	ActionDuration prometheus.Histogram
	// Superseded counts queued actions replaced by a later one.
	Superseded prometheus.Counter
	// QueueDepth is the number of actions waiting for a worker.
	QueueDepth prometheus.Gauge
	// EventsDropped counts change events discarded by full outbound queues.
	EventsDropped prometheus.Counter
	// Sessions is the number of open sessions.
	Sessions prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg gets a
// private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		SettlePasses: f.NewCounter(prometheus.CounterOpts{
			Name: "docgrid_settle_passes_total",
			Help: "Total settle passes run after committed actions.",
		}),
		Computations: f.NewCounter(prometheus.CounterOpts{
			Name: "docgrid_cell_computations_total",
			Help: "Total cell compute-function invocations.",
		}),
		Cutoffs: f.NewCounter(prometheus.CounterOpts{
			Name: "docgrid_cell_cutoffs_total",
			Help: "Total stale cells revalidated without recomputation.",
		}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docgrid_actions_total",
			Help: "Total actions by name and outcome status.",
		}, []string{"action", "status"}),
		ActionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docgrid_action_duration_seconds",
			Help:    "Time the pipeline worker spends on one action.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
		Superseded: f.NewCounter(prometheus.CounterOpts{
			Name: "docgrid_actions_superseded_total",
			Help: "Total queued actions superseded by a later action.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "docgrid_action_queue_depth",
			Help: "Actions waiting for the pipeline worker.",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "docgrid_events_dropped_total",
			Help: "Change events dropped because an outbound queue was full.",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "docgrid_sessions",
			Help: "Open document sessions.",
		}),
	}
}
