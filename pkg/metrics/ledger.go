package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ledger collects balance engine metrics. A nil *Ledger is a no-op.
type Ledger struct {
	commits    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	lockWait   prometheus.Histogram
	retries    *prometheus.CounterVec
	drift      *prometheus.CounterVec
}

// NewLedger registers the ledger collectors against registerer.
func NewLedger(registerer prometheus.Registerer) *Ledger {
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncstock_ledger_commits_total",
		Help: "Events committed to the balance ledger by event type and action.",
	}, []string{"event", "action"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncstock_ledger_rejections_total",
		Help: "Events rejected by the balance ledger by event type and reason.",
	}, []string{"event", "reason"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncstock_ledger_lock_wait_seconds",
		Help:    "Time spent acquiring balance row locks for one event.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
	})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncstock_ledger_retries_total",
		Help: "Whole-event retries after a transient balance store failure.",
	}, []string{"event"})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syncstock_ledger_drift_total",
		Help: "Balance buckets found out of line with their source records.",
	}, []string{"repaired"})
	registerer.MustRegister(commits, rejections, lockWait, retries, drift)
	return &Ledger{
		commits:    commits,
		rejections: rejections,
		lockWait:   lockWait,
		retries:    retries,
		drift:      drift,
	}
}

// Committed counts one committed event
func (m *Ledger) Committed(event, action string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(event, action).Inc()
}

// Rejected counts one rejected event
func (m *Ledger) Rejected(event, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(event, reason).Inc()
}

// ObserveLockWait records how long lock acquisition took
func (m *Ledger) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// Retried counts one retry of a whole event
func (m *Ledger) Retried(event string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(event).Inc()
}

// Drifted counts drifted buckets found by reconciliation
func (m *Ledger) Drifted(count int, repaired bool) {
	if m == nil || count <= 0 {
		return
	}
	label := "false"
	if repaired {
		label = "true"
	}
	m.drift.WithLabelValues(label).Add(float64(count))
}
