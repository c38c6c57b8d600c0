package changeset

// ChangeSet is the parsed form of a change-set document.
type ChangeSet struct {
	// FormatVersion is the document format version reported by the
	// planning tool that produced the change set.
	FormatVersion string `json:"format_version,omitempty"`

	// Resources are the proposed resource changes, in document order.
	// Evaluation must not depend on this order, but reporting preserves
	// it so repeated runs produce identical output.
	Resources []ResourceChange `json:"resource_changes"`
}

// ResourceChange describes one proposed change to a single resource.
type ResourceChange struct {
	// Address uniquely identifies the resource within the change set.
	// It is opaque to the engine and reproduced verbatim in violations.
	Address string `json:"address" validate:"required"`

	// Type is the resource kind tag (e.g. "aws_s3_bucket_versioning").
	// It is the sole dispatch key for rule matching.
	Type string `json:"type" validate:"required"`

	// Actions are the planned operations (create, update, delete, ...).
	Actions []string `json:"actions,omitempty"`

	// Before is the attribute tree prior to the change. Nil for creates.
	Before any `json:"before"`

	// After is the attribute tree the change would produce. Nil for
	// destroys.
	After any `json:"after"`
}

// Root returns the attribute tree rules resolve paths against. The
// resource's own identity is exposed alongside the before/after trees so
// rules can constrain on address, type, and planned actions too.
func (rc *ResourceChange) Root() map[string]any {
	actions := make([]any, len(rc.Actions))
	for i, a := range rc.Actions {
		actions[i] = a
	}
	return map[string]any{
		"address": rc.Address,
		"type":    rc.Type,
		"actions": actions,
		"before":  rc.Before,
		"after":   rc.After,
	}
}

// Equal reports whether two attribute values compare equal under the
// engine's literal comparison semantics: nulls equal nulls, booleans and
// strings compare by value, numbers compare numerically regardless of Go
// representation, and everything else (type mismatches, lists, maps) is
// never equal. Comparison is total; it cannot fail.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

// toFloat normalizes the numeric types produced by the JSON and YAML
// decoders to a common representation.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
