package observability

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fracvault/native/common"
	"fracvault/native/vault"
)

// VaultMetrics tracks lifecycle transitions and compensation flow.
type VaultMetrics struct {
	transitions  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	paid         prometheus.Counter
	conflicts    prometheus.Counter
	ineligible   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// Vault returns the lazily-initialised vault metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fracvault",
				Subsystem: "vault",
				Name:      "transitions_total",
				Help:      "Vault operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fracvault",
				Subsystem: "vault",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for vault operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			paid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fracvault",
				Subsystem: "vault",
				Name:      "compensation_paid_total",
				Help:      "Quote-asset micro-units disbursed to minority holders.",
			}),
			conflicts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fracvault",
				Subsystem: "state",
				Name:      "commit_conflicts_total",
				Help:      "State transactions retried after a concurrent commit touched the same keys.",
			}),
			ineligible: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fracvault",
				Subsystem: "vault",
				Name:      "reclaim_ineligible_total",
				Help:      "Rejected reclaim initiations segmented by eligibility reason.",
			}, []string{"reason"}),
			httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fracvault",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests served by vaultd segmented by route and status class.",
			}, []string{"route", "class"}),
		}
		prometheus.MustRegister(
			vaultRegistry.transitions,
			vaultRegistry.latency,
			vaultRegistry.paid,
			vaultRegistry.conflicts,
			vaultRegistry.ineligible,
			vaultRegistry.httpRequests,
		)
	})
	return vaultRegistry
}

// Outcome classifies an operation error into a stable label.
func Outcome(err error) string {
	var violation *vault.Ineligibility
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &violation):
		return "ineligible"
	case errors.Is(err, common.ErrModulePaused):
		return "paused"
	case errors.Is(err, vault.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, vault.ErrUnauthorized):
		return "unauthorized"
	case vault.IsRetryable(err):
		return "retryable"
	default:
		return "error"
	}
}

// Observe records the outcome and latency of a vault operation.
func (m *VaultMetrics) Observe(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	m.transitions.WithLabelValues(operation, Outcome(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
	var violation *vault.Ineligibility
	if errors.As(err, &violation) {
		m.ineligible.WithLabelValues(string(violation.Reason)).Inc()
	}
}

// RecordPaid adds a disbursed amount to the compensation counter.
func (m *VaultMetrics) RecordPaid(amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.paid.Add(float64(amount))
}

// RecordConflict counts a retried state transaction.
func (m *VaultMetrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// RecordHTTP counts a served request by route pattern and status class.
func (m *VaultMetrics) RecordHTTP(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	m.httpRequests.WithLabelValues(route, class).Inc()
}
