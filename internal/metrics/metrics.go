package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Authorization attempts appended to the ledger, by attempt status.",
	}, []string{"status"})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_state_transitions_total",
		Help: "Payment request state transitions.",
	}, []string{"from", "to"})

	SecurityAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "security_alerts_total",
		Help: "Security alerts raised for consecutive PIN failures.",
	})

	RevocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credential_revocations_total",
		Help: "Credential revocation attempts, by result.",
	}, []string{"result"})

	SideEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_tasks_total",
		Help: "Dispatched best-effort tasks, by task name and result.",
	}, []string{"task", "result"})

	VerifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credential_verifier_request_duration_seconds",
		Help:    "Latency of credential verifier calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})
)
