package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "autopost",
			Name:      "notify_subscribers",
			Help:      "Currently connected notification subscribers",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "notify_events_total",
			Help:      "Notification events broadcast",
		},
		[]string{"type"},
	)

	droppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "notify_dropped_total",
			Help:      "Deliveries dropped because a subscriber queue was full",
		},
	)
)
