package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(ReplicatedFiles, ReplicationErrors, CycleDuration, LedgerEntries, Fetches, FetchDuration)

	before := testutil.ToFloat64(ReplicatedFiles)
	ReplicatedFiles.Inc()
	if got := testutil.ToFloat64(ReplicatedFiles); got != before+1 {
		t.Fatalf("replicated files = %v, want %v", got, before+1)
	}

	ReplicationErrors.WithLabelValues("copy").Add(2)
	LedgerEntries.Set(3)
	Fetches.WithLabelValues("ok").Inc()

	expectedErrors := `# HELP dubsync_replication_errors_total Per-file errors swallowed by the sync engine.
# TYPE dubsync_replication_errors_total counter
dubsync_replication_errors_total{stage="copy"} 2
`
	if err := testutil.CollectAndCompare(ReplicationErrors, strings.NewReader(expectedErrors)); err != nil {
		t.Fatalf("unexpected errors metric: %v", err)
	}

	expectedGauge := `# HELP dubsync_ledger_entries Identities recorded in the replication ledger.
# TYPE dubsync_ledger_entries gauge
dubsync_ledger_entries 3
`
	if err := testutil.CollectAndCompare(LedgerEntries, strings.NewReader(expectedGauge)); err != nil {
		t.Fatalf("unexpected ledger gauge: %v", err)
	}

	expectedFetches := `# HELP dubsync_fetches_total Fetch requests by outcome.
# TYPE dubsync_fetches_total counter
dubsync_fetches_total{outcome="ok"} 1
`
	if err := testutil.CollectAndCompare(Fetches, strings.NewReader(expectedFetches)); err != nil {
		t.Fatalf("unexpected fetches metric: %v", err)
	}
}

func TestFetchDurationHistogram(t *testing.T) {
	// Fresh collector to avoid cross-test contamination.
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dubsync",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of the external fetch tool.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	FetchDuration.Observe(0.5)
	FetchDuration.Observe(20)

	expected := `# HELP dubsync_fetch_duration_seconds Wall time of the external fetch tool.
# TYPE dubsync_fetch_duration_seconds histogram
dubsync_fetch_duration_seconds_bucket{le="1"} 1
dubsync_fetch_duration_seconds_bucket{le="5"} 1
dubsync_fetch_duration_seconds_bucket{le="15"} 1
dubsync_fetch_duration_seconds_bucket{le="30"} 2
dubsync_fetch_duration_seconds_bucket{le="60"} 2
dubsync_fetch_duration_seconds_bucket{le="120"} 2
dubsync_fetch_duration_seconds_bucket{le="300"} 2
dubsync_fetch_duration_seconds_bucket{le="600"} 2
dubsync_fetch_duration_seconds_bucket{le="+Inf"} 2
dubsync_fetch_duration_seconds_sum 20.5
dubsync_fetch_duration_seconds_count 2
`
	if err := testutil.CollectAndCompare(FetchDuration, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}
}
