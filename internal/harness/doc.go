// Package harness runs YAML conformance scenarios against a fresh in-memory
// data store.
//
// A scenario seeds entries, then runs a flow of steps (set, delete, named or
// inline queries, enrichment) and finally evaluates assertions over the
// trace and the final store contents. Every enrich step also checks the
// round-trip law: cleaning an enriched object restores it exactly.
//
// Example scenario:
//
//	name: people
//	description: Filter and enrich people
//	specs: [people.cue]
//	seed:
//	  - key: user/peter
//	    value: {name: Peter}
//	flow:
//	  - query: peter
//	    expect:
//	      - key: user/peter
//	        value: {name: Peter}
//	  - enrich: {firstName: Pete, lastName: Smith, tags: [person]}
//	assertions:
//	  - type: result_count
//	    step: 0
//	    count: 1
//
// RunWithGolden compares the canonical-JSON trace of a run against
// testdata/golden/<name>.golden.
package harness
