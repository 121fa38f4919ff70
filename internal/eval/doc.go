// Package eval interprets expression trees (ir.Expr) against a root value.
//
// Two entry points share one walker:
//
//	Evaluate      may suspend: AsyncFunc calls and query nodes run with ctx
//	EvaluateSync  never suspends: reaching an AsyncFunc or a query node
//	              fails with SYNCHRONY_VIOLATION
//
// The query engine uses Evaluate; object enrichment uses EvaluateSync.
//
// Operator semantics:
//
//	=      membership when the left value is a list, deep equality otherwise
//	=~     the left value must be a string to match; the right operand must
//	       be a regexp literal
//	and/or both operands must be boolean
//	+      string concatenation when both are strings, numeric sum when both
//	       are numbers
//
// Evaluation errors are *EvalError values. Use the Is* helpers rather than
// comparing codes directly; they see through wrapping.
package eval
