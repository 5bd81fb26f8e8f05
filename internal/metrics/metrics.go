package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ReplicatedFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dubsync",
			Name:      "replicated_files_total",
			Help:      "Files copied to the backup directory by the sync engine.",
		},
	)

	ReplicationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dubsync",
			Name:      "replication_errors_total",
			Help:      "Per-file errors swallowed by the sync engine.",
		},
		[]string{"stage"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dubsync",
			Name:      "replication_cycle_seconds",
			Help:      "Duration of a full scan cycle, including stability windows.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	LedgerEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dubsync",
			Name:      "ledger_entries",
			Help:      "Identities recorded in the replication ledger.",
		},
	)

	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dubsync",
			Name:      "fetches_total",
			Help:      "Fetch requests by outcome.",
		},
		[]string{"outcome"},
	)

	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dubsync",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of the external fetch tool.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

// Register registers the dubsync metrics into the default registry.
func Register() {
	prometheus.MustRegister(ReplicatedFiles, ReplicationErrors, CycleDuration, LedgerEntries, Fetches, FetchDuration)
}
