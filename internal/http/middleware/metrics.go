package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
	SessionOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_ops_total",
			Help: "Ledger operations by op name and outcome",
		},
		[]string{"op", "outcome"},
	)
	SessionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_completed_total",
			Help: "Sessions that reached the Complete phase",
		},
	)
)

func init() {
	prometheus.MustRegister(RLRequests)
	prometheus.MustRegister(RLBlocked)
	prometheus.MustRegister(SessionOps)
	prometheus.MustRegister(SessionsCompleted)
}
