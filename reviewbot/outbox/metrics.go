package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewbot_outbox_enqueued_total",
		Help: "Number of outbox messages enqueued, by sender class",
	}, []string{"class"})
	messagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbot_outbox_delivered_total",
		Help: "Number of outbox messages delivered",
	})
	messagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbot_outbox_failed_total",
		Help: "Number of failed outbox delivery attempts",
	})
	relayPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewbot_outbox_relay_panics_total",
		Help: "Number of outbox drains aborted by a panic",
	})
	outboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewbot_outbox_pending",
		Help: "Number of outbox messages seen waiting at the last drain",
	})
)
