package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 投票处理结果
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeDenied  = "denied"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

var VotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedivote_votes_total",
	Help: "number of vote requests processed, by outcome",
}, []string{"outcome"})

var LockWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fedivote_lock_wait_seconds",
	Help:    "time spent waiting to acquire content and author locks",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"scope"})

var LockTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedivote_lock_timeouts_total",
	Help: "number of lock acquisitions that gave up after the blocking wait",
}, []string{"scope"})

var LockLeaseLostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedivote_lock_lease_lost_total",
	Help: "number of releases that found the lease already expired or taken over",
}, []string{"scope"})

var ScaleRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedivote_ranking_scale_refresh_total",
	Help: "number of ranking scale reference refreshes, by result",
}, []string{"result"})

var EmitFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedivote_emit_failures_total",
	Help: "number of post-commit side effects that failed, by sink",
}, []string{"sink"})
