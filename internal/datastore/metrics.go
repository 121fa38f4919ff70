package datastore

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	queriesTotal       = metrics.NewCounter(`docstore_queries_total`)
	queryErrorsTotal   = metrics.NewCounter(`docstore_query_errors_total`)
	queryDuration      = metrics.NewHistogram(`docstore_query_duration_seconds`)
	queryScanned       = metrics.NewHistogram(`docstore_query_scanned_entries`)
	enrichPassesTotal  = metrics.NewCounter(`docstore_enrich_passes_total`)
	enrichErrorsTotal  = metrics.NewCounter(`docstore_enrich_errors_total`)
	enrichWritesTotal  = metrics.NewCounter(`docstore_enrich_writes_total`)
	enrichRevertsTotal = metrics.NewCounter(`docstore_enrich_reverts_total`)
)

// WritePrometheus writes the store's metrics in Prometheus text format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
