// Package metrics holds the Prometheus instrumentation shared by the store
// and the HTTP server. Each database instance owns its own registry so that
// tests can open many instances in one process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	StoreReadsTotal   prometheus.Counter
	StoreWritesTotal  prometheus.Counter
	TxnCommitsTotal   prometheus.Counter
	TxnConflictsTotal prometheus.Counter
	TxnAbortsTotal    prometheus.Counter

	NoncesAcceptedTotal prometheus.Counter
	NoncesRejectedTotal prometheus.Counter
	NoncesPurgedTotal   prometheus.Counter

	RequestDuration *prometheus.HistogramVec
}

// New registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StoreReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "store",
			Name:      "reads_total",
			Help:      "Total number of point reads against the byte store",
		}),
		StoreWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Total number of writes against the byte store",
		}),
		TxnCommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "store",
			Name:      "txn_commits_total",
			Help:      "Total number of committed transactions",
		}),
		TxnConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "store",
			Name:      "txn_conflicts_total",
			Help:      "Total number of transactions that failed to commit due to a conflict",
		}),
		TxnAbortsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "store",
			Name:      "txn_aborts_total",
			Help:      "Total number of discarded transactions",
		}),
		NoncesAcceptedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "nonces",
			Name:      "accepted_total",
			Help:      "Total number of nonces accepted into the replay ledger",
		}),
		NoncesRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "nonces",
			Name:      "rejected_total",
			Help:      "Total number of replayed nonces rejected",
		}),
		NoncesPurgedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "nigori",
			Subsystem: "nonces",
			Name:      "purged_total",
			Help:      "Total number of expired nonces removed from the ledger",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nigori",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}
