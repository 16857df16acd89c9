package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler ticks by result",
		},
		[]string{"result"}, // "ok", "skipped", "load_error", "persist_error"
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "autopost",
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of scheduler ticks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "scheduler_outcomes_total",
			Help:      "Post outcomes recorded by the scheduler",
		},
		[]string{"result"}, // "posted", "failed", "schedule_error"
	)

	publishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "autopost",
			Name:      "scheduler_publish_duration_seconds",
			Help:      "Duration of publish attempts in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	persistErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "scheduler_persist_errors_total",
			Help:      "Snapshot writes that failed after retrying",
		},
	)
)
