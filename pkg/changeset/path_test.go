package changeset

import (
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		variable string
		wantErr  bool
	}{
		{name: "single key", input: "after"},
		{name: "dotted keys", input: "after.versioning_configuration.status"},
		{name: "index step", input: "after.rule[0].mode"},
		{name: "wildcard step", input: "after.rule[*].mode"},
		{name: "binding relative", input: "$r.apply_server_side_encryption_by_default", variable: "r"},
		{name: "binding only", input: "$k", variable: "k"},
		{name: "hyphenated key", input: "after.log-delivery"},
		{name: "empty", input: "", wantErr: true},
		{name: "bare sigil", input: "$", wantErr: true},
		{name: "unterminated index", input: "after.rule[0", wantErr: true},
		{name: "negative index", input: "after.rule[-1]", wantErr: true},
		{name: "double dot", input: "after..status", wantErr: true},
		{name: "trailing dot", input: "after.", wantErr: true},
		{name: "leading digit segment", input: "after.0status", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath(%q) failed: %v", tt.input, err)
			}
			if p.Variable() != tt.variable {
				t.Errorf("Variable() = %q, want %q", p.Variable(), tt.variable)
			}
			if p.String() != tt.input {
				t.Errorf("String() = %q, want %q", p.String(), tt.input)
			}
		})
	}
}

func TestPathResolve(t *testing.T) {
	root := map[string]any{
		"after": map[string]any{
			"status": "Enabled",
			"rule": []any{
				map[string]any{"algorithm": "aws:kms", "key_id": "arn:key/abc"},
				map[string]any{"algorithm": "AES256"},
			},
			"count": float64(3),
		},
		"before": nil,
	}

	tests := []struct {
		name string
		path string
		want []any
	}{
		{
			name: "scalar key",
			path: "after.status",
			want: []any{"Enabled"},
		},
		{
			name: "list index",
			path: "after.rule[1].algorithm",
			want: []any{"AES256"},
		},
		{
			name: "wildcard fans out",
			path: "after.rule[*].algorithm",
			want: []any{"aws:kms", "AES256"},
		},
		{
			name: "wildcard with partial matches",
			path: "after.rule[*].key_id",
			want: []any{"arn:key/abc"},
		},
		{
			name: "missing key",
			path: "after.logging",
			want: nil,
		},
		{
			name: "missing nested key",
			path: "after.rule[*].missing",
			want: nil,
		},
		{
			name: "index out of range",
			path: "after.rule[5].algorithm",
			want: nil,
		},
		{
			name: "key step on scalar",
			path: "after.status.nested",
			want: nil,
		},
		{
			name: "wildcard on non-list",
			path: "after.status[*]",
			want: nil,
		},
		{
			name: "key under null",
			path: "before.status",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustParsePath(tt.path).Resolve(root)
			if len(got) != len(tt.want) {
				t.Fatalf("Resolve(%q) = %v, want %v", tt.path, got, tt.want)
			}
			for i := range got {
				if !Equal(got[i], tt.want[i]) {
					t.Errorf("Resolve(%q)[%d] = %v, want %v", tt.path, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPathElements(t *testing.T) {
	root := map[string]any{
		"after": map[string]any{
			"rule":   []any{"a", "b"},
			"scalar": "x",
		},
	}

	if got := MustParsePath("after.rule").Elements(root); len(got) != 2 {
		t.Errorf("Elements over a list = %v, want 2 elements", got)
	}
	if got := MustParsePath("after.scalar").Elements(root); got != nil {
		t.Errorf("Elements over a scalar = %v, want nil", got)
	}
	if got := MustParsePath("after.missing").Elements(root); got != nil {
		t.Errorf("Elements over a missing path = %v, want nil", got)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "equal strings", a: "Enabled", b: "Enabled", want: true},
		{name: "unequal strings", a: "Enabled", b: "Suspended", want: false},
		{name: "equal bools", a: true, b: true, want: true},
		{name: "numeric cross-type", a: float64(3), b: 3, want: true},
		{name: "both nil", a: nil, b: nil, want: true},
		{name: "nil vs value", a: nil, b: "x", want: false},
		{name: "string vs number mismatch", a: "3", b: float64(3), want: false},
		{name: "bool vs string mismatch", a: true, b: "true", want: false},
		{name: "lists never equal", a: []any{"a"}, b: []any{"a"}, want: false},
		{name: "maps never equal", a: map[string]any{}, b: map[string]any{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
