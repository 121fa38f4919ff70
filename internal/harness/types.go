package harness

import "github.com/roach88/docstore/internal/ir"

// Trace event types.
const (
	EventSet    = "set"
	EventDelete = "delete"
	EventQuery  = "query"
	EventEnrich = "enrich"
)

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Name is the query name (named queries only).
	Name string `json:"name,omitempty"`

	// Key is the affected key (set and delete).
	Key string `json:"key,omitempty"`

	// Results are the query results.
	Results []ir.Entry `json:"results,omitempty"`

	// Enriched is the object after enrichment.
	Enriched ir.IRValue `json:"enriched,omitempty"`

	// Error is the step's error message, if it failed.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final store contents, keyed by "/"-joined key.
	State map[string]ir.IRValue `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]ir.IRValue),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends e to the trace.
func (r *Result) AddEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
