package policy

import (
	"fmt"
)

// EvalError reports an internal engine defect: a predicate tree that
// escaped load-time validation turned out to be malformed during
// evaluation. It aborts the whole run; no partial report is produced.
type EvalError struct {
	// RuleID is the rule whose predicate tree is malformed.
	RuleID string

	// Address is the resource being evaluated when the defect surfaced.
	Address string

	// Err describes the malformation.
	Err error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	return fmt.Sprintf("internal evaluation error: rule %s, resource %s: %v", e.RuleID, e.Address, e.Err)
}

// Unwrap returns the underlying error.
func (e *EvalError) Unwrap() error {
	return e.Err
}
