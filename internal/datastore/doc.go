// Package datastore implements the document store: declarative queries over
// a namespaced key-value primitive and reversible object enrichment.
//
// # Query
//
// Query runs a QuerySpec in five steps:
//
//  1. prefix scan   entries under spec.Prefix, in key order
//  2. filter        keep entries whose filter evaluates to true
//  3. orderBy       stable sort, one key per orderBy item, desc reverses
//  4. limit         truncate to the number limit evaluates to
//  5. select        replace each value with a freshly built object
//
// Any evaluation error fails the whole query. There is no partial-result
// mode.
//
// # Enrichment
//
// EnrichObject applies ObjectEnrichers in list order to an object in place.
// Expressions are evaluated synchronously; an enricher that reaches an async
// function or sub-query fails with a synchrony violation. Writes follow
// three rules:
//   - a path present in the pristine object is never overwritten
//   - a list written where this pass already wrote a list is appended
//   - anything else is set, creating intermediate objects as needed
//
// Every write is recorded in a Provenance. CleanEnrichedObject replays the
// record backwards, so the object returns to its pristine state exactly.
// Empty objects that were present before enrichment are kept.
//
// # Metrics
//
// Query and enrichment counters are registered with
// github.com/VictoriaMetrics/metrics and exposed by WritePrometheus.
package datastore
