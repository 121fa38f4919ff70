package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docstore/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", i+1, event.Type)
			if event.Name != "" {
				fmt.Fprintf(&buf, " %s", event.Name)
			}
			if event.Key != "" {
				fmt.Fprintf(&buf, " %s", event.Key)
			}
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%q", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// stepResults returns the results of the query at flow index step.
// Events are recorded one per step, so the index is shared.
func stepResults(trace []TraceEvent, step int) ([]ir.Entry, error) {
	if step < 0 || step >= len(trace) || trace[step].Type != EventQuery {
		return nil, fmt.Errorf("step %d is not a query step", step)
	}
	if trace[step].Error != "" {
		return nil, fmt.Errorf("step %d failed: %s", step, trace[step].Error)
	}
	return trace[step].Results, nil
}

// assertResultCount checks the number of results of one query step.
func assertResultCount(trace []TraceEvent, assertion Assertion) error {
	results, err := stepResults(trace, assertion.Step)
	if err != nil {
		return &AssertionError{Type: AssertResultCount, Expected: "query results", Actual: err.Error(), Trace: trace}
	}
	if len(results) != assertion.Count {
		return &AssertionError{
			Type:     AssertResultCount,
			Expected: fmt.Sprintf("%d results from step %d", assertion.Count, assertion.Step),
			Actual:   fmt.Sprintf("%d results: %s", len(results), renderEntries(results)),
			Trace:    trace,
		}
	}
	return nil
}

// assertResultKeys checks the result keys of one query step, in order.
func assertResultKeys(trace []TraceEvent, assertion Assertion) error {
	results, err := stepResults(trace, assertion.Step)
	if err != nil {
		return &AssertionError{Type: AssertResultKeys, Expected: "query results", Actual: err.Error(), Trace: trace}
	}
	got := make([]string, len(results))
	for i, e := range results {
		got[i] = e.Key.String()
	}
	if !slices.Equal(got, assertion.Keys) {
		return &AssertionError{
			Type:     AssertResultKeys,
			Expected: fmt.Sprintf("keys %v from step %d", assertion.Keys, assertion.Step),
			Actual:   fmt.Sprintf("keys %v", got),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks that the trace holds exactly Count events of the
// given type.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the final value at Key using subset semantics for
// objects and exact equality otherwise.
func assertFinalState(state map[string]ir.IRValue, assertion Assertion) error {
	actual, exists := state[assertion.Key]

	if assertion.Expect == nil {
		if exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("key %s to be absent", assertion.Key),
				Actual:   render(actual),
			}
		}
		return nil
	}

	want, err := ir.FromGo(assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", assertion.Key, err)
	}
	if !exists {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("key %s = %s", assertion.Key, render(want)),
			Actual:   "key not found",
		}
	}
	if !matchSubset(actual, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("key %s matching %s", assertion.Key, render(want)),
			Actual:   render(actual),
		}
	}
	return nil
}

// matchSubset reports whether actual contains expected. Objects match when
// every expected attribute matches; other values must be equal.
func matchSubset(actual, expected ir.IRValue) bool {
	want, ok := expected.(ir.IRObject)
	if !ok {
		return ir.Equal(actual, expected)
	}
	got, ok := actual.(ir.IRObject)
	if !ok {
		return false
	}
	for k, v := range want {
		av, exists := got[k]
		if !exists || !matchSubset(av, v) {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertResultCount:
			err = assertResultCount(result.Trace, assertion)
		case AssertResultKeys:
			err = assertResultKeys(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
