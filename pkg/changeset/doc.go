// Package changeset models a proposed set of infrastructure changes as an
// in-memory document that rules can be evaluated against.
//
// A change set is an ordered list of resource changes, each carrying an
// opaque address, a resource type tag, and a tree of before/after attribute
// values. Attribute trees are dynamic: scalars, positionally ordered lists,
// and string-keyed maps, nested to any depth, shaped however the planning
// tool that produced the document shaped them.
//
// Navigation into attribute trees happens through Path expressions.
// Resolution is total: missing keys, out-of-range indices, and wrong-shaped
// nodes contribute no matches rather than failing, so predicates over
// partially specified data degrade to non-satisfaction instead of errors.
package changeset
