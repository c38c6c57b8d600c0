package changeset

import (
	"fmt"
	"strconv"
	"strings"
)

// stepKind discriminates the three path step forms.
type stepKind int

const (
	stepKey stepKind = iota
	stepIndex
	stepWildcard
)

// step is one navigation step into an attribute tree.
type step struct {
	kind  stepKind
	key   string
	index int
}

// Path is a parsed path expression into an attribute tree.
//
// The textual form is a dotted key sequence with optional list steps:
//
//	after.versioning_configuration[0].status
//	after.rule[*].apply_server_side_encryption_by_default[*].kms_master_key_id
//	$r.apply_server_side_encryption_by_default[*].sse_algorithm
//
// A leading "$name" makes the path relative to the quantifier binding
// "name" instead of the resource's attribute root. "[N]" selects one list
// element, "[*]" fans out over every element of a list.
type Path struct {
	variable string
	steps    []step
	raw      string
}

// ParsePath parses the textual form of a path expression.
func ParsePath(s string) (Path, error) {
	p := Path{raw: s}
	if s == "" {
		return Path{}, fmt.Errorf("empty path")
	}

	rest := s
	if strings.HasPrefix(rest, "$") {
		ident, r, err := scanIdent(rest[1:])
		if err != nil {
			return Path{}, fmt.Errorf("path %q: %w", s, err)
		}
		p.variable = ident
		rest = r
	} else {
		ident, r, err := scanIdent(rest)
		if err != nil {
			return Path{}, fmt.Errorf("path %q: %w", s, err)
		}
		p.steps = append(p.steps, step{kind: stepKey, key: ident})
		rest = r
	}

	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "."):
			ident, r, err := scanIdent(rest[1:])
			if err != nil {
				return Path{}, fmt.Errorf("path %q: %w", s, err)
			}
			p.steps = append(p.steps, step{kind: stepKey, key: ident})
			rest = r
		case strings.HasPrefix(rest, "[*]"):
			p.steps = append(p.steps, step{kind: stepWildcard})
			rest = rest[3:]
		case strings.HasPrefix(rest, "["):
			end := strings.IndexByte(rest, ']')
			if end < 2 {
				return Path{}, fmt.Errorf("path %q: unterminated index", s)
			}
			n, err := strconv.Atoi(rest[1:end])
			if err != nil || n < 0 {
				return Path{}, fmt.Errorf("path %q: invalid index %q", s, rest[1:end])
			}
			p.steps = append(p.steps, step{kind: stepIndex, index: n})
			rest = rest[end+1:]
		default:
			return Path{}, fmt.Errorf("path %q: unexpected %q", s, rest)
		}
	}

	return p, nil
}

// MustParsePath parses a path expression and panics on error. Intended for
// statically known paths such as built-in rules.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// scanIdent consumes a leading identifier and returns it plus the rest.
func scanIdent(s string) (string, string, error) {
	i := 0
	for i < len(s) && isIdentChar(s[i], i == 0) {
		i++
	}
	if i == 0 {
		return "", "", fmt.Errorf("expected identifier at %q", s)
	}
	return s[:i], s[i:], nil
}

func isIdentChar(c byte, first bool) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' {
		return true
	}
	if first {
		return false
	}
	return c >= '0' && c <= '9' || c == '-'
}

// Variable returns the binding name this path is relative to, or "" when
// the path is relative to the resource's attribute root.
func (p Path) Variable() string {
	return p.variable
}

// IsZero reports whether the path is the unparsed zero value.
func (p Path) IsZero() bool {
	return p.variable == "" && len(p.steps) == 0
}

// String returns the textual form the path was parsed from.
func (p Path) String() string {
	return p.raw
}

// Resolve walks the path's steps against root and returns every matching
// value. Wildcard steps fan one path into many results; key and index steps
// produce at most one. Missing keys, out-of-range indices, and steps applied
// to wrong-shaped nodes contribute nothing. The result is nil when nothing
// matched; resolution itself never fails.
//
// For binding-relative paths the caller supplies the bound element as root.
func (p Path) Resolve(root any) []any {
	frontier := []any{root}
	for _, st := range p.steps {
		var next []any
		for _, node := range frontier {
			switch st.kind {
			case stepKey:
				m, ok := node.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := m[st.key]; ok {
					next = append(next, v)
				}
			case stepIndex:
				l, ok := node.([]any)
				if !ok || st.index >= len(l) {
					continue
				}
				next = append(next, l[st.index])
			case stepWildcard:
				l, ok := node.([]any)
				if !ok {
					continue
				}
				next = append(next, l...)
			}
		}
		if len(next) == 0 {
			return nil
		}
		frontier = next
	}
	return frontier
}

// Elements resolves the path and flattens every resolved list into its
// elements. Resolved values that are not lists are skipped, mirroring the
// absence-is-no-match policy: quantifying over a scalar or missing
// collection quantifies over nothing.
func (p Path) Elements(root any) []any {
	var elems []any
	for _, v := range p.Resolve(root) {
		if l, ok := v.([]any); ok {
			elems = append(elems, l...)
		}
	}
	return elems
}

// MarshalText implements encoding.TextMarshaler so paths render as their
// source text in JSON reports.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
