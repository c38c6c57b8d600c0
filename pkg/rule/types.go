package rule

import (
	"github.com/changeguard/changeguard/pkg/changeset"
)

// Severity represents the severity level of a violation raised by a rule.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that should block a change.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the defined severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Rule is one guardrail: a predicate that must hold for every resource
// change of the target type. A rule is immutable once loaded.
type Rule struct {
	// ID uniquely identifies the rule within a rule set.
	ID string `json:"id" validate:"required"`

	// Description provides a human-readable description.
	Description string `json:"description,omitempty"`

	// TargetType is the resource type this rule applies to. It is the
	// sole dispatch key: resources of any other type are not evaluated.
	TargetType string `json:"target_type" validate:"required"`

	// Severity is the severity of violations this rule raises.
	Severity Severity `json:"severity"`

	// Message is the violation message template. "{address}" expands to
	// the resource address; "{name}" expands to the value captured for
	// the quantifier binding "name" when one was captured.
	Message string `json:"message" validate:"required"`

	// Enabled indicates whether the rule participates in evaluation.
	Enabled bool `json:"enabled"`

	// Predicate is the condition that must hold. A resource for which it
	// is unsatisfied is a violation.
	Predicate Predicate `json:"-"`
}

// Predicate is a node in a rule's predicate expression tree.
type Predicate interface {
	predicate()
}

// Equals is satisfied when at least one value resolved by Path compares
// equal to Value. Absence of the path means no value matches.
type Equals struct {
	Path  changeset.Path
	Value any
}

// NotEquals is satisfied when at least one value resolved by Path compares
// not-equal to Value. Like Equals it needs a witness: if the path resolves
// to nothing there is no differing value and the node is unsatisfied.
type NotEquals struct {
	Path  changeset.Path
	Value any
}

// Exists is satisfied when at least one element of the collection at
// Collection satisfies Inner with Binding bound to that element. A nil
// Inner asserts only that the collection has an element. Quantification is
// existential, never universal.
type Exists struct {
	Binding    string
	Collection changeset.Path
	Inner      Predicate
}

// Not is satisfied when Inner is unsatisfied. Inner may only read
// variables bound by an enclosing Exists; see SafetyError.
type Not struct {
	Inner Predicate
}

// And is satisfied when every child is satisfied. Evaluation
// short-circuits left to right.
type And struct {
	Children []Predicate
}

func (*Equals) predicate()    {}
func (*NotEquals) predicate() {}
func (*Exists) predicate()    {}
func (*Not) predicate()       {}
func (*And) predicate()       {}
