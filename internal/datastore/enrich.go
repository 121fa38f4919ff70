package datastore

import (
	"fmt"
	"strings"

	"github.com/roach88/docstore/internal/ir"
)

type writeKind int

const (
	// writeSet placed a value at a path that was absent or synthetic.
	writeSet writeKind = iota
	// writeAppend extended a list this pass had already written.
	writeAppend
)

// write is one provenance record.
type write struct {
	kind writeKind
	path []string

	// createdFrom is the index of the first intermediate object the write
	// created; len(path)-1 when it created none. writeSet only.
	createdFrom int

	// origLen is the list length before the append. writeAppend only.
	origLen int
}

// Provenance records what one enrichment pass did to an object, in write
// order. Revert undoes it.
type Provenance struct {
	root   ir.IRObject
	writes []write

	// synthetic holds every joined path written or created by this pass.
	synthetic map[string]bool
}

func newProvenance(root ir.IRObject) *Provenance {
	return &Provenance{root: root, synthetic: make(map[string]bool)}
}

// Writes returns the number of recorded writes.
func (p *Provenance) Writes() int {
	return len(p.writes)
}

// Paths returns the dotted paths written by the pass, in write order.
func (p *Provenance) Paths() []string {
	paths := make([]string, len(p.writes))
	for i, w := range p.writes {
		paths[i] = strings.Join(w.path, ".")
	}
	return paths
}

// isSynthetic reports whether path or one of its ancestors was created by
// this pass.
func (p *Provenance) isSynthetic(path []string) bool {
	for i := 1; i <= len(path); i++ {
		if p.synthetic[strings.Join(path[:i], ".")] {
			return true
		}
	}
	return false
}

// apply writes value at path under the merge policy and records the write.
// It reports whether anything was written.
func (p *Provenance) apply(path []string, value ir.IRValue) bool {
	if value == nil {
		return false
	}

	// Find the deepest existing ancestor first so a skipped write leaves no
	// intermediate objects behind.
	parent := p.root
	depth := 0
	for ; depth < len(path)-1; depth++ {
		next, exists := parent[path[depth]]
		if !exists {
			break
		}
		child, ok := next.(ir.IRObject)
		if !ok {
			// Cannot descend through a non-object; leave the data alone.
			return false
		}
		parent = child
	}

	leaf := path[len(path)-1]
	createdFrom := depth
	if depth == len(path)-1 {
		existing, exists := parent[leaf]
		if exists && !p.isSynthetic(path) {
			// Pristine data always wins.
			return false
		}
		if prev, ok := existing.(ir.IRArray); ok {
			if more, ok := value.(ir.IRArray); ok {
				merged := make(ir.IRArray, 0, len(prev)+len(more))
				merged = append(merged, prev...)
				merged = append(merged, ir.Clone(more).(ir.IRArray)...)
				parent[leaf] = merged
				p.writes = append(p.writes, write{kind: writeAppend, path: path, origLen: len(prev)})
				return true
			}
		}
	}

	for ; depth < len(path)-1; depth++ {
		child := ir.IRObject{}
		parent[path[depth]] = child
		parent = child
	}
	parent[leaf] = ir.Clone(value)

	for i := createdFrom; i < len(path); i++ {
		p.synthetic[strings.Join(path[:i+1], ".")] = true
	}
	p.writes = append(p.writes, write{kind: writeSet, path: path, createdFrom: createdFrom})
	return true
}

// lookupParent returns the object holding the last segment of path, or nil
// if some ancestor is missing or not an object.
func (p *Provenance) lookupParent(path []string) ir.IRObject {
	node := p.root
	for _, seg := range path[:len(path)-1] {
		child, ok := node[seg].(ir.IRObject)
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// Revert undoes the recorded writes in reverse order: appended tails are
// trimmed, set values are deleted, and intermediate objects the pass
// created are removed once empty. Revert is idempotent.
func (p *Provenance) Revert() {
	for i := len(p.writes) - 1; i >= 0; i-- {
		w := p.writes[i]
		parent := p.lookupParent(w.path)
		if parent == nil {
			continue
		}
		leaf := w.path[len(w.path)-1]

		switch w.kind {
		case writeAppend:
			if list, ok := parent[leaf].(ir.IRArray); ok && len(list) >= w.origLen {
				parent[leaf] = append(ir.IRArray{}, list[:w.origLen]...)
			}
		case writeSet:
			delete(parent, leaf)
			for depth := len(w.path) - 2; depth >= w.createdFrom; depth-- {
				holder := p.lookupParent(w.path[:depth+1])
				if holder == nil {
					break
				}
				seg := w.path[depth]
				node, ok := holder[seg].(ir.IRObject)
				if !ok {
					break
				}
				CleanupEmptyObjects(node)
				if len(node) > 0 {
					break
				}
				delete(holder, seg)
			}
		}
	}
	p.writes = nil
	clear(p.synthetic)
}

// splitPath splits a dotted attribute path.
func splitPath(path string) ([]string, error) {
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("invalid attribute path %q", path)
		}
	}
	return segs, nil
}

// Enrich applies the store's ObjectEnrichers to obj and returns the record
// of what changed. The record is not kept; use EnrichObject for the
// remembered form.
//
// If any enricher fails, the writes made so far are reverted and obj is
// left as it was.
func (ds *DataStore) Enrich(obj ir.IRObject) (*Provenance, error) {
	if obj == nil {
		return nil, fmt.Errorf("enrich: nil object")
	}
	enrichPassesTotal.Inc()
	prov := newProvenance(obj)

	for i, enricher := range ds.ObjectEnrichers {
		if err := ds.applyEnricher(prov, enricher); err != nil {
			prov.Revert()
			enrichErrorsTotal.Inc()
			ds.logger.Warn("enrichment failed", "enricher", i, "error", err)
			return nil, fmt.Errorf("enricher %d: %w", i, err)
		}
	}

	enrichWritesTotal.Add(prov.Writes())
	return prov, nil
}

func (ds *DataStore) applyEnricher(prov *Provenance, enricher ir.ObjectEnricher) error {
	ok, err := ds.evaluator.EvaluateBoolSync(enricher.Where, prov.root)
	if err != nil {
		return fmt.Errorf("where: %w", err)
	}
	if !ok {
		return nil
	}

	for _, path := range enricher.Paths() {
		segs, err := splitPath(path)
		if err != nil {
			return err
		}
		value, err := ds.evaluator.EvaluateSync(enricher.Attributes[path], prov.root)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", path, err)
		}
		prov.apply(segs, value)
	}
	return nil
}

// EnrichObject applies the store's ObjectEnrichers to obj in place and
// remembers the pass for CleanEnrichedObject. Enriching an object that
// still carries an earlier pass reverts that pass first.
func (ds *DataStore) EnrichObject(obj ir.IRObject) error {
	if obj == nil {
		return fmt.Errorf("enrich: nil object")
	}
	id := objectID(obj)

	ds.mu.Lock()
	if prev, ok := ds.provenance[id]; ok {
		prev.Revert()
		delete(ds.provenance, id)
	}
	ds.mu.Unlock()

	prov, err := ds.Enrich(obj)
	if err != nil {
		return err
	}

	ds.mu.Lock()
	ds.provenance[id] = prov
	ds.mu.Unlock()
	return nil
}

// CleanEnrichedObject reverts the most recent EnrichObject pass on obj.
// Objects with no remembered pass are left untouched.
func (ds *DataStore) CleanEnrichedObject(obj ir.IRObject) {
	id := objectID(obj)

	ds.mu.Lock()
	prov, ok := ds.provenance[id]
	delete(ds.provenance, id)
	ds.mu.Unlock()

	if ok {
		prov.Revert()
		enrichRevertsTotal.Inc()
	}
}
