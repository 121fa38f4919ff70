package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/docstore/internal/compiler"
	"github.com/roach88/docstore/internal/datastore"
	"github.com/roach88/docstore/internal/eval"
	"github.com/roach88/docstore/internal/ir"
	"github.com/roach88/docstore/internal/kv/memory"
)

// Harness is the test execution engine.
type Harness struct {
	ds      *datastore.DataStore
	queries map[string]ir.QuerySpec
	seq     int64
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation.
//
// Execution flow:
// 1. Create fresh in-memory store
// 2. Compile the scenario's spec files
// 3. Write seed entries
// 4. Execute flow steps with expect validation
// 5. Capture final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunWithFunctions(scenario, eval.Builtins())
}

// RunWithFunctions is Run with a caller-supplied function registry.
func RunWithFunctions(scenario *Scenario, funcs eval.Functions) (*Result, error) {
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st := memory.New()
	defer st.Close()

	h := &Harness{
		ds:      datastore.New(st, funcs, datastore.WithLogger(logger)),
		queries: make(map[string]ir.QuerySpec),
		logger:  logger,
	}

	if err := h.loadSpecs(scenario.Specs); err != nil {
		return nil, err
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	entries, err := h.ds.Query(ctx, ir.QuerySpec{})
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	for _, e := range entries {
		result.State[e.Key.String()] = e.Value
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// loadSpecs compiles every spec file, merging named queries and appending
// enrichers in file order.
func (h *Harness) loadSpecs(paths []string) error {
	var enrichers []ir.ObjectEnricher
	for _, path := range paths {
		spec, err := compiler.CompileFile(path)
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", path, err)
		}
		for _, name := range spec.QueryNames() {
			if _, dup := h.queries[name]; dup {
				return fmt.Errorf("query %q defined in more than one spec file", name)
			}
			h.queries[name] = spec.Queries[name]
		}
		enrichers = append(enrichers, spec.Enrichers...)
	}
	h.ds.ObjectEnrichers = enrichers
	return nil
}

func (h *Harness) seed(ctx context.Context, seed []EntryStep) error {
	if len(seed) == 0 {
		return nil
	}
	entries := make([]ir.Entry, len(seed))
	for i, s := range seed {
		e, err := toEntry(s)
		if err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		entries[i] = e
	}
	return h.ds.BatchSet(ctx, entries)
}

// executeStep runs one flow step. Step failures are recorded in the result;
// only malformed steps return an error.
func (h *Harness) executeStep(ctx context.Context, index int, step FlowStep, result *Result) error {
	h.seq++
	event := TraceEvent{Type: step.kind(), Seq: h.seq}

	var stepErr error
	switch event.Type {
	case EventSet:
		entry, err := toEntry(*step.Set)
		if err != nil {
			return err
		}
		event.Key = entry.Key.String()
		stepErr = h.ds.Set(ctx, entry.Key, entry.Value)

	case EventDelete:
		key, err := ir.ParseKey(step.Delete)
		if err != nil {
			return err
		}
		event.Key = key.String()
		stepErr = h.ds.Delete(ctx, key)

	case EventQuery:
		event.Name = step.Query
		spec, err := h.resolveQuery(step)
		if err != nil {
			return err
		}
		var results []ir.Entry
		results, stepErr = h.ds.Query(ctx, spec)
		if stepErr == nil {
			event.Results = results
			if event.Results == nil {
				event.Results = []ir.Entry{}
			}
			if step.Expect != nil {
				h.checkQueryExpect(index, step.Expect, results, result)
			}
		}

	case EventEnrich:
		stepErr = h.enrich(index, step, &event, result)

	default:
		return fmt.Errorf("step has no action")
	}

	if stepErr != nil {
		event.Error = stepErr.Error()
	}
	checkExpectedError(index, step.ExpectError, stepErr, result)
	result.AddEvent(event)
	h.logger.Debug("step executed", "index", index, "type", event.Type, "error", event.Error)
	return nil
}

func (h *Harness) resolveQuery(step FlowStep) (ir.QuerySpec, error) {
	if step.Query != "" {
		spec, ok := h.queries[step.Query]
		if !ok {
			return ir.QuerySpec{}, fmt.Errorf("query %q not defined", step.Query)
		}
		return spec, nil
	}
	raw, err := ir.FromGo(step.Inline)
	if err != nil {
		return ir.QuerySpec{}, err
	}
	return ir.ParseQuerySpec(raw)
}

// enrich enriches a copy of the step object, records it, then cleans it and
// checks the round-trip law.
func (h *Harness) enrich(index int, step FlowStep, event *TraceEvent, result *Result) error {
	raw, err := ir.FromGo(step.Enrich)
	if err != nil {
		return err
	}
	obj := raw.(ir.IRObject)
	pristine := ir.Clone(obj)

	if err := h.ds.EnrichObject(obj); err != nil {
		if !ir.Equal(pristine, obj) {
			result.AddError(fmt.Sprintf("flow[%d]: failed enrichment modified the object", index))
		}
		return err
	}
	event.Enriched = ir.Clone(obj)

	if step.Expect != nil {
		want, err := ir.FromGo(step.Expect)
		if err != nil {
			return err
		}
		if !ir.Equal(want, obj) {
			result.AddError(fmt.Sprintf("flow[%d]: enriched object = %s, want %s", index, render(obj), render(want)))
		}
	}

	h.ds.CleanEnrichedObject(obj)
	if !ir.Equal(pristine, obj) {
		result.AddError(fmt.Sprintf("flow[%d]: round trip: cleaned object = %s, want %s", index, render(obj), render(pristine)))
	}
	return nil
}

func (h *Harness) checkQueryExpect(index int, expect any, results []ir.Entry, result *Result) {
	want, err := toEntries(expect)
	if err != nil {
		result.AddError(fmt.Sprintf("flow[%d].expect: %v", index, err))
		return
	}
	if !entriesEqual(want, results) {
		result.AddError(fmt.Sprintf("flow[%d]: results = %s, want %s", index, renderEntries(results), renderEntries(want)))
	}
}

func checkExpectedError(index int, want string, got error, result *Result) {
	switch {
	case want == "" && got != nil:
		result.AddError(fmt.Sprintf("flow[%d]: unexpected error: %v", index, got))
	case want != "" && got == nil:
		result.AddError(fmt.Sprintf("flow[%d]: expected error containing %q, got success", index, want))
	case want != "" && !strings.Contains(got.Error(), want):
		result.AddError(fmt.Sprintf("flow[%d]: error %q does not contain %q", index, got.Error(), want))
	}
}

func toEntry(s EntryStep) (ir.Entry, error) {
	key, err := ir.ParseKey(s.Key)
	if err != nil {
		return ir.Entry{}, err
	}
	value, err := ir.FromGo(s.Value)
	if err != nil {
		return ir.Entry{}, fmt.Errorf("key %s: %w", key, err)
	}
	return ir.Entry{Key: key, Value: value}, nil
}

// toEntries converts a YAML list of {key, value} maps.
func toEntries(v any) ([]ir.Entry, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of {key, value}, got %T", v)
	}
	entries := make([]ir.Entry, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%d]: expected {key, value}, got %T", i, item)
		}
		key, _ := m["key"].(string)
		e, err := toEntry(EntryStep{Key: key, Value: m["value"]})
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		entries[i] = e
	}
	return entries, nil
}

func entriesEqual(a, b []ir.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key.Compare(b[i].Key) != 0 || !ir.Equal(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// render formats a value as canonical JSON for error messages.
func render(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func renderEntries(entries []ir.Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.Key.String() + "=" + render(e.Value)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
