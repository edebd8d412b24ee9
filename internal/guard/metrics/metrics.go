package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	GuardDenialsTotal        *prometheus.CounterVec
	GuardAllowedTotal        prometheus.Counter
	AuthFailuresRecorded     prometheus.Counter
	LockoutsTriggeredTotal   prometheus.Counter
	ScanMatchesTotal         *prometheus.CounterVec
	SessionMismatchesTotal   *prometheus.CounterVec
	SessionRotationsTotal    prometheus.Counter
	StoreFailOpenTotal       *prometheus.CounterVec
	GuardCheckDurationSecond prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		GuardDenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stayguard_denials_total",
			Help: "Requests denied by the guard, by reason",
		}, []string{"reason"}),
		GuardAllowedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stayguard_allowed_total",
			Help: "Requests that passed every guard check",
		}),
		AuthFailuresRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stayguard_auth_failures_recorded_total",
			Help: "Authentication failures reported by business logic",
		}),
		LockoutsTriggeredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stayguard_lockouts_triggered_total",
			Help: "Brute-force blocks created after crossing the failure threshold",
		}),
		ScanMatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stayguard_scan_matches_total",
			Help: "Suspicious-input signature matches, by category",
		}, []string{"category"}),
		SessionMismatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stayguard_session_mismatches_total",
			Help: "Session fingerprint mismatches, by attribute",
		}, []string{"attribute"}),
		SessionRotationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stayguard_session_rotations_total",
			Help: "Session identifiers rotated on the fixed cadence",
		}),
		StoreFailOpenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stayguard_store_fail_open_total",
			Help: "Guard checks that failed open because the counter store was unavailable",
		}, []string{"check"}),
		GuardCheckDurationSecond: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stayguard_check_duration_seconds",
			Help:    "Duration of the full guard pipeline per request",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordDenial(reason string) {
	if m != nil {
		m.GuardDenialsTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) RecordAllowed() {
	if m != nil {
		m.GuardAllowedTotal.Inc()
	}
}

func (m *Metrics) RecordAuthFailure() {
	if m != nil {
		m.AuthFailuresRecorded.Inc()
	}
}

func (m *Metrics) RecordLockout() {
	if m != nil {
		m.LockoutsTriggeredTotal.Inc()
	}
}

func (m *Metrics) RecordScanMatch(category string) {
	if m != nil {
		m.ScanMatchesTotal.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) RecordSessionMismatch(attribute string) {
	if m != nil {
		m.SessionMismatchesTotal.WithLabelValues(attribute).Inc()
	}
}

func (m *Metrics) RecordSessionRotation() {
	if m != nil {
		m.SessionRotationsTotal.Inc()
	}
}

func (m *Metrics) RecordStoreFailOpen(check string) {
	if m != nil {
		m.StoreFailOpenTotal.WithLabelValues(check).Inc()
	}
}

func (m *Metrics) ObserveCheckDuration(seconds float64) {
	if m != nil {
		m.GuardCheckDurationSecond.Observe(seconds)
	}
}
