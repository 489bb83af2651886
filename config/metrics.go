package config

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PostingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharmacy",
		Name:      "postings_total",
		Help:      "Document posting attempts by document type and result.",
	}, []string{"doc", "result"})

	PostingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pharmacy",
		Name:      "posting_duration_seconds",
		Help:      "Wall time of a posting transaction.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"doc"})

	LedgerMovementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pharmacy",
		Name:      "ledger_movements_total",
		Help:      "Inventory movements written, by reason.",
	}, []string{"reason"})

	AuditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pharmacy",
		Name:      "audit_failures_total",
		Help:      "Audit side-effects that failed and were swallowed.",
	})
)

func init() {
	prometheus.MustRegister(PostingsTotal, PostingDuration, LedgerMovementsTotal, AuditFailuresTotal)
}
