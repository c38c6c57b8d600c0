package policy

import (
	"fmt"

	"github.com/changeguard/changeguard/pkg/changeset"
	"github.com/changeguard/changeguard/pkg/rule"
)

// bindings is the evaluation environment: quantifier variables bound by
// enclosing Exists nodes, mapped to the elements they range over.
type bindings map[string]any

// evaluate determines whether a rule's predicate is satisfied by a
// resource change. The returned map holds, for each Exists node that
// found a satisfying element on the accepting path, the first such
// element, keyed by binding name; it feeds message rendering. The only
// error condition is a malformed predicate tree, which load-time
// validation is supposed to make impossible.
func evaluate(rc *changeset.ResourceChange, r *rule.Rule) (bool, map[string]any, error) {
	root := rc.Root()
	captured := make(map[string]any)
	ok, err := eval(r.Predicate, root, nil, captured)
	if err != nil {
		return false, nil, &EvalError{RuleID: r.ID, Address: rc.Address, Err: err}
	}
	return ok, captured, nil
}

// eval walks one predicate node. It is total over well-formed trees:
// missing paths, empty collections, and type mismatches all evaluate to
// ordinary non-satisfaction. capture is nil under negation, where
// recording bindings would be meaningless.
func eval(p rule.Predicate, root map[string]any, env bindings, capture map[string]any) (bool, error) {
	switch n := p.(type) {
	case *rule.Equals:
		vals, err := resolvePath(n.Path, root, env)
		if err != nil {
			return false, err
		}
		for _, v := range vals {
			if changeset.Equal(v, n.Value) {
				return true, nil
			}
		}
		return false, nil

	case *rule.NotEquals:
		// Needs a witness: some resolved value that differs. An absent
		// path has no witness and is unsatisfied, so "key must differ
		// from null" correctly fails when the key is missing.
		vals, err := resolvePath(n.Path, root, env)
		if err != nil {
			return false, err
		}
		for _, v := range vals {
			if !changeset.Equal(v, n.Value) {
				return true, nil
			}
		}
		return false, nil

	case *rule.Exists:
		vals, err := resolvePath(n.Collection, root, env)
		if err != nil {
			return false, err
		}
		for _, v := range vals {
			elems, ok := v.([]any)
			if !ok {
				continue
			}
			for _, elem := range elems {
				inner := make(bindings, len(env)+1)
				for k, bv := range env {
					inner[k] = bv
				}
				inner[n.Binding] = elem

				satisfied := true
				if n.Inner != nil {
					satisfied, err = eval(n.Inner, root, inner, capture)
					if err != nil {
						return false, err
					}
				}
				if satisfied {
					if capture != nil {
						if _, seen := capture[n.Binding]; !seen {
							capture[n.Binding] = elem
						}
					}
					return true, nil
				}
			}
		}
		return false, nil

	case *rule.Not:
		ok, err := eval(n.Inner, root, env, nil)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case *rule.And:
		for _, c := range n.Children {
			ok, err := eval(c, root, env, capture)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case nil:
		return false, fmt.Errorf("nil predicate node")

	default:
		return false, fmt.Errorf("unknown predicate node %T", p)
	}
}

// resolvePath resolves a path against either the resource's attribute
// root or, for binding-relative paths, the bound element.
func resolvePath(p changeset.Path, root map[string]any, env bindings) ([]any, error) {
	v := p.Variable()
	if v == "" {
		return p.Resolve(root), nil
	}
	elem, bound := env[v]
	if !bound {
		return nil, fmt.Errorf("unbound variable %q", v)
	}
	return p.Resolve(elem), nil
}
