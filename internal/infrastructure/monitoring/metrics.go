package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the token trust core.
type Metrics struct {
	TokensIssued        *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
	Revocations         *prometheus.CounterVec
	KeyRotations        prometheus.Counter
	LedgerCleanups      prometheus.Counter
	LedgerPurgedEntries prometheus.Counter
}

// NewMetrics creates and registers the collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TokensIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokencore_tokens_issued_total",
				Help: "Tokens issued, by token type.",
			},
			[]string{"token_type"},
		),
		Verifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokencore_verifications_total",
				Help: "Verification attempts, by outcome (ok or the rejection kind).",
			},
			[]string{"result"},
		),
		VerificationLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tokencore_verification_latency_seconds",
				Help:    "End-to-end verification latency including the revocation check.",
				Buckets: prometheus.DefBuckets,
			},
		),
		Revocations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokencore_revocations_total",
				Help: "Revocations recorded, by trigger (single, by_jti, subject).",
			},
			[]string{"trigger"},
		),
		KeyRotations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tokencore_key_rotations_total",
				Help: "Signing key rotations performed.",
			},
		),
		LedgerCleanups: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tokencore_ledger_cleanups_total",
				Help: "Revocation ledger cleanup passes.",
			},
		),
		LedgerPurgedEntries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tokencore_ledger_purged_entries_total",
				Help: "Expired revocation entries removed by cleanup.",
			},
		),
	}
}

// RecordIssued counts one issuance.
func (m *Metrics) RecordIssued(tokenType string) {
	m.TokensIssued.WithLabelValues(tokenType).Inc()
}

// RecordVerification counts one verification attempt with its outcome.
func (m *Metrics) RecordVerification(result string, duration time.Duration) {
	m.Verifications.WithLabelValues(result).Inc()
	m.VerificationLatency.Observe(duration.Seconds())
}

// RecordRevocation counts one revocation.
func (m *Metrics) RecordRevocation(trigger string) {
	m.Revocations.WithLabelValues(trigger).Inc()
}

// RecordCleanup counts one ledger cleanup pass.
func (m *Metrics) RecordCleanup(purged int64) {
	m.LedgerCleanups.Inc()
	m.LedgerPurgedEntries.Add(float64(purged))
}
