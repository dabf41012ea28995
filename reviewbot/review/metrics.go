package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewbot_passes_total",
	Help: "Number of review passes run, by pass and outcome",
}, []string{"pass", "outcome"})

var passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "reviewbot_pass_duration_seconds",
	Help:    "Duration of review passes",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
}, []string{"pass"})

var votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewbot_votes_total",
	Help: "Number of vote replies handled, by result",
}, []string{"result"})

var votesFlagged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reviewbot_votes_flagged_total",
	Help: "Number of closed votes that flagged a post for moderators",
})

var removalsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reviewbot_removals_total",
	Help: "Number of posts removed for double dipping",
})

var removalQuotaHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reviewbot_removal_quota_hits_total",
	Help: "Number of removals skipped because the daily quota was used up",
})

var recordsPurged = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reviewbot_records_purged_total",
	Help: "Number of post records purged for exceeding the maximum age",
})

var unitsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "reviewbot_units_active",
	Help: "Number of review units currently running",
})

var loopErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reviewbot_loop_errors_total",
	Help: "Number of failed background loop iterations",
}, []string{"loop"})
