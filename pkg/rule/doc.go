// Package rule defines guardrail rules and loads them from declarative
// rule files.
//
// A rule names a target resource type, a predicate over the resource's
// attribute tree, and a message template rendered into violations. The
// predicate language is deliberately small: path comparisons, existential
// quantification over collections, negation, and conjunction.
//
// # Rule files
//
// Rules are authored in YAML (JSON works too, YAML being a superset):
//
//	version: 1
//	rules:
//	  - id: bucket-versioning-enabled
//	    target_type: aws_s3_bucket_versioning
//	    severity: error
//	    message: "versioning must be enabled for {address}"
//	    match:
//	      exists:
//	        bind: vc
//	        in: after.versioning_configuration
//	        where:
//	          equals: {path: $vc.status, value: Enabled}
//
// Documents are checked against a CUE schema before decoding, so shape
// problems surface as load-time ParseErrors with the file position, never
// as evaluation-time surprises.
//
// # Negation safety
//
// A "not" node may only read variables already bound by an enclosing
// "exists", and may not contain an "exists" of its own: negating an
// unbound existential search ("there is NOT some element such that...")
// has no sound meaning once collections can be empty or vary in shape.
// The constraint is enforced structurally when the rule is loaded; a rule
// that violates it is rejected with a SafetyError, and the whole rule set
// is refused rather than evaluating an unsound rule.
package rule
