package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignInDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "signon", Name: "signin_decisions_total", Help: "Number of sign-in callback decisions by provider and outcome."},
		[]string{"provider", "decision"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "signon", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "signon", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(SignInDecisions)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
