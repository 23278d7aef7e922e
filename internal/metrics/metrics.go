// Package metrics exposes Prometheus instruments for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tripledger"

// Metrics groups the ledger's instruments. A nil *Metrics records nothing.
type Metrics struct {
	expenses         *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	plannedTransfers prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		expenses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expense_operations_total",
			Help:      "Committed expense operations by kind.",
		}, []string{"operation"}),
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlements written, by resulting status.",
		}, []string{"status"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Operations rejected with a conflict, by operation.",
		}, []string{"operation"}),
		plannedTransfers: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "planned_transfers",
			Help:      "Number of transfers in computed settlement plans.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_cache_lookups_total",
			Help:      "Balance cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ExpenseOperation(op string) {
	if m == nil {
		return
	}
	m.expenses.WithLabelValues(op).Inc()
}

func (m *Metrics) Settlement(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) PlannedTransfers(n int) {
	if m == nil {
		return
	}
	m.plannedTransfers.Observe(float64(n))
}

// CacheLookup records a hit, miss or error.
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
