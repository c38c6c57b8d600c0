package rule

import (
	"fmt"

	"github.com/changeguard/changeguard/pkg/changeset"
)

// SafetyError reports a rule whose negation is unsound: a "not" node reads
// a variable no enclosing "exists" has bound, or introduces a fresh
// existential variable of its own. Such a rule is rejected at load time
// and never evaluated.
type SafetyError struct {
	// RuleID is the offending rule.
	RuleID string

	// Variable is the unbound or freshly introduced variable.
	Variable string

	// Reason describes the violated structural constraint.
	Reason string
}

// Error implements the error interface.
func (e *SafetyError) Error() string {
	return fmt.Sprintf("rule %s: unsafe negation: %s (variable %q)", e.RuleID, e.Reason, e.Variable)
}

// Validate checks a rule's structural invariants: required fields, a
// well-formed predicate tree, and negation safety. It is the single load
// boundary every rule passes before evaluation, whether the rule came from
// a file or was constructed programmatically.
func Validate(r *Rule) error {
	if r.ID == "" {
		return &ParseError{Err: fmt.Errorf("rule id is required")}
	}
	if r.TargetType == "" {
		return &ParseError{RuleID: r.ID, Err: fmt.Errorf("target_type is required")}
	}
	if r.Message == "" {
		return &ParseError{RuleID: r.ID, Err: fmt.Errorf("message is required")}
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return &ParseError{RuleID: r.ID, Err: fmt.Errorf("invalid severity %q", r.Severity)}
	}
	if r.Predicate == nil {
		return &ParseError{RuleID: r.ID, Err: fmt.Errorf("rule has no predicate")}
	}
	return checkScope(r.ID, r.Predicate, map[string]bool{}, false)
}

// checkScope walks the predicate tree tracking the set of variables bound
// by enclosing Exists nodes and whether the walk is inside a negation.
func checkScope(ruleID string, p Predicate, bound map[string]bool, negated bool) error {
	switch n := p.(type) {
	case *Equals:
		return checkPathScope(ruleID, n.Path, bound, negated)

	case *NotEquals:
		return checkPathScope(ruleID, n.Path, bound, negated)

	case *Exists:
		if negated {
			return &SafetyError{
				RuleID:   ruleID,
				Variable: n.Binding,
				Reason:   "existential quantifier introduces a fresh variable under negation",
			}
		}
		if n.Binding == "" {
			return &ParseError{RuleID: ruleID, Err: fmt.Errorf("exists node has no binding name")}
		}
		if n.Collection.IsZero() {
			return &ParseError{RuleID: ruleID, Err: fmt.Errorf("exists node has no collection path")}
		}
		if err := checkPathScope(ruleID, n.Collection, bound, negated); err != nil {
			return err
		}
		if bound[n.Binding] {
			return &ParseError{
				RuleID: ruleID,
				Err:    fmt.Errorf("binding %q shadows an enclosing binding", n.Binding),
			}
		}
		if n.Inner == nil {
			return nil
		}
		inner := make(map[string]bool, len(bound)+1)
		for k := range bound {
			inner[k] = true
		}
		inner[n.Binding] = true
		return checkScope(ruleID, n.Inner, inner, negated)

	case *Not:
		if n.Inner == nil {
			return &ParseError{RuleID: ruleID, Err: fmt.Errorf("not node has no operand")}
		}
		return checkScope(ruleID, n.Inner, bound, true)

	case *And:
		if len(n.Children) == 0 {
			return &ParseError{RuleID: ruleID, Err: fmt.Errorf("all node has no operands")}
		}
		for _, c := range n.Children {
			if c == nil {
				return &ParseError{RuleID: ruleID, Err: fmt.Errorf("all node has a nil operand")}
			}
			if err := checkScope(ruleID, c, bound, negated); err != nil {
				return err
			}
		}
		return nil

	case nil:
		return &ParseError{RuleID: ruleID, Err: fmt.Errorf("nil predicate node")}

	default:
		return &ParseError{RuleID: ruleID, Err: fmt.Errorf("unknown predicate node %T", p)}
	}
}

// checkPathScope verifies that a binding-relative path refers to a bound
// variable.
func checkPathScope(ruleID string, p changeset.Path, bound map[string]bool, negated bool) error {
	if p.IsZero() {
		return &ParseError{RuleID: ruleID, Err: fmt.Errorf("comparison node has no path")}
	}
	v := p.Variable()
	if v == "" || bound[v] {
		return nil
	}
	if negated {
		return &SafetyError{
			RuleID:   ruleID,
			Variable: v,
			Reason:   "negation references a variable not bound by an enclosing exists",
		}
	}
	return &ParseError{RuleID: ruleID, Err: fmt.Errorf("path %s references undefined binding %q", p, v)}
}
