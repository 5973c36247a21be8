package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/instalist/instalist-server/internal/domain"
)

var (
	// syncOps counts sync engine operations by kind, operation and outcome.
	// All three labels come from closed sets.
	syncOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "instalist",
			Name:      "sync_operations_total",
			Help:      "Sync engine operations by kind, operation and outcome.",
		},
		[]string{"kind", "op", "outcome"},
	)

	// pairingEvents counts group creations and device registrations.
	pairingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "instalist",
			Name:      "pairing_events_total",
			Help:      "Group creations and device registrations by outcome.",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(syncOps, pairingEvents)
}

// RecordSyncOp increments the sync operations counter. Its signature matches
// services.SyncService.Observe.
func RecordSyncOp(kind domain.Kind, op, outcome string) {
	syncOps.WithLabelValues(string(kind), op, outcome).Inc()
}

// RecordPairing increments the pairing events counter.
func RecordPairing(event string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pairingEvents.WithLabelValues(event, outcome).Inc()
}
