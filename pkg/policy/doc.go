// Package policy evaluates guardrail rules against infrastructure change
// sets and reports violations.
//
// The engine cross-applies every loaded rule to every resource change
// whose type matches the rule's target type. A rule encodes a condition
// that must hold; a (rule, resource) pair whose predicate is unsatisfied
// becomes one violation. Evaluation is a pure, single-pass computation:
// no I/O, no shared mutable state, total predicate semantics (missing
// paths, empty collections, and type mismatches are ordinary
// non-satisfaction, never errors).
//
// # Usage
//
// Creating an engine and evaluating a change set:
//
//	logger := zerolog.New(os.Stderr)
//	eng := policy.NewEngine(logger, policy.WithWorkers(4))
//	if err := eng.LoadRules(rule.Builtins()); err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := eng.Evaluate(ctx, cs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !report.Passed {
//	    for _, v := range report.Violations {
//	        fmt.Printf("%s: %s: %s\n", v.RuleID, v.Address, v.Message)
//	    }
//	}
//
// # Determinism
//
// Violations are ordered by change-set position, then by rule declaration
// order, and deduplicated by (rule id, resource address). The ordering is
// identical whether evaluation runs sequentially or across workers, so
// repeated runs over the same inputs produce byte-identical reports
// (modulo run id and timestamps).
//
// # Errors
//
// Rules are validated when loaded; see the rule package for the
// SafetyError and ParseError load failures. The evaluator itself only
// fails on a malformed predicate tree that escaped load-time validation,
// which is an engine defect reported as an EvalError rather than a rule
// authoring problem.
package policy
