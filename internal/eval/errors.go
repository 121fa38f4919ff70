package eval

import (
	"errors"
	"fmt"
)

// EvalError represents an error detected while evaluating an expression.
//
// Evaluation errors include:
//   - Unknown function: a call names a function missing from the registry
//   - Type mismatch: an operator received operands it cannot combine
//   - Invalid regexp: the right operand of =~ is not a compilable regexp literal
//   - Non-boolean: a filter, where clause or logical operand is not a boolean
//   - Synchrony violation: synchronous evaluation reached a suspension point
type EvalError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Op names the operator, function or node kind that failed.
	Op string
}

// ErrorCode categorizes evaluation errors.
type ErrorCode string

const (
	// ErrCodeUnknownFunction indicates a call to a name with no registered function.
	ErrCodeUnknownFunction ErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeTypeMismatch indicates an operator or function received unusable operands.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeInvalidRegexp indicates a malformed regexp operand.
	ErrCodeInvalidRegexp ErrorCode = "INVALID_REGEXP"

	// ErrCodeNonBoolean indicates a boolean was required but not produced.
	ErrCodeNonBoolean ErrorCode = "NON_BOOLEAN"

	// ErrCodeInvalidExpression indicates a node the evaluator cannot interpret.
	ErrCodeInvalidExpression ErrorCode = "INVALID_EXPRESSION"

	// ErrCodeSynchronyViolation indicates synchronous evaluation reached an
	// async call or a sub-query.
	ErrCodeSynchronyViolation ErrorCode = "SYNCHRONY_VIOLATION"
)

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, op, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsSynchronyViolation returns true if synchronous evaluation reached a
// suspension point. Uses errors.As to handle wrapped errors.
func IsSynchronyViolation(err error) bool {
	return hasCode(err, ErrCodeSynchronyViolation)
}

// IsTypeMismatch returns true if an operator or function received operands
// of the wrong kind.
func IsTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeTypeMismatch)
}

// IsUnknownFunction returns true if a call named an unregistered function.
func IsUnknownFunction(err error) bool {
	return hasCode(err, ErrCodeUnknownFunction)
}

// IsNonBoolean returns true if a boolean result was required but not produced.
func IsNonBoolean(err error) bool {
	return hasCode(err, ErrCodeNonBoolean)
}

// IsInvalidRegexp returns true if a regexp operand was malformed.
func IsInvalidRegexp(err error) bool {
	return hasCode(err, ErrCodeInvalidRegexp)
}

// IsEvalError returns true for any evaluation error.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}
