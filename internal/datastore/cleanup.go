package datastore

import "github.com/roach88/docstore/internal/ir"

// CleanupEmptyObjects removes, depth first, every object-valued attribute
// that is empty once its own children have been cleaned. Lists are never
// pruned or descended into, so an empty list survives.
func CleanupEmptyObjects(obj ir.IRObject) {
	for k, v := range obj {
		child, ok := v.(ir.IRObject)
		if !ok {
			continue
		}
		CleanupEmptyObjects(child)
		if len(child) == 0 {
			delete(obj, k)
		}
	}
}
