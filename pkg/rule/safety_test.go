package rule

import (
	"errors"
	"testing"

	"github.com/changeguard/changeguard/pkg/changeset"
)

func validRule(p Predicate) Rule {
	return Rule{
		ID:         "test-rule",
		TargetType: "aws_s3_bucket",
		Severity:   SeverityError,
		Message:    "violation on {address}",
		Enabled:    true,
		Predicate:  p,
	}
}

func TestValidateAcceptsSafePredicates(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
	}{
		{
			name: "plain comparison",
			pred: &Equals{Path: changeset.MustParsePath("after.status"), Value: "Enabled"},
		},
		{
			name: "negation without variables",
			pred: &Not{Inner: &Equals{Path: changeset.MustParsePath("after.acl"), Value: "public-read"}},
		},
		{
			name: "negation over bound variable",
			pred: &Exists{
				Binding:    "r",
				Collection: changeset.MustParsePath("after.rule"),
				Inner: &Not{Inner: &Equals{
					Path:  changeset.MustParsePath("$r.mode"),
					Value: "disabled",
				}},
			},
		},
		{
			name: "exists without inner predicate",
			pred: &Exists{
				Binding:    "r",
				Collection: changeset.MustParsePath("after.rule"),
			},
		},
		{
			name: "nested bindings",
			pred: &Exists{
				Binding:    "r",
				Collection: changeset.MustParsePath("after.rule"),
				Inner: &Exists{
					Binding:    "k",
					Collection: changeset.MustParsePath("$r.keys"),
					Inner: &And{Children: []Predicate{
						&Equals{Path: changeset.MustParsePath("$r.mode"), Value: "on"},
						&NotEquals{Path: changeset.MustParsePath("$k.id"), Value: nil},
					}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule(tt.pred)
			if err := Validate(&r); err != nil {
				t.Errorf("Validate rejected a safe rule: %v", err)
			}
		})
	}
}

func TestValidateRejectsUnsafeNegation(t *testing.T) {
	tests := []struct {
		name     string
		pred     Predicate
		variable string
	}{
		{
			name: "negation over unbound variable",
			pred: &Not{Inner: &Equals{
				Path:  changeset.MustParsePath("$r.status"),
				Value: "Enabled",
			}},
			variable: "r",
		},
		{
			name: "exists under negation",
			pred: &Not{Inner: &Exists{
				Binding:    "r",
				Collection: changeset.MustParsePath("after.rule"),
				Inner:      &Equals{Path: changeset.MustParsePath("$r.status"), Value: "on"},
			}},
			variable: "r",
		},
		{
			name: "exists under nested negation",
			pred: &Exists{
				Binding:    "outer",
				Collection: changeset.MustParsePath("after.rule"),
				Inner: &Not{Inner: &Exists{
					Binding:    "inner",
					Collection: changeset.MustParsePath("$outer.keys"),
				}},
			},
			variable: "inner",
		},
		{
			name: "sibling binding leaks into negation",
			pred: &And{Children: []Predicate{
				&Exists{
					Binding:    "r",
					Collection: changeset.MustParsePath("after.rule"),
				},
				&Not{Inner: &Equals{
					Path:  changeset.MustParsePath("$r.status"),
					Value: "on",
				}},
			}},
			variable: "r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRule(tt.pred)
			err := Validate(&r)
			if err == nil {
				t.Fatal("Validate accepted an unsafe rule")
			}
			var serr *SafetyError
			if !errors.As(err, &serr) {
				t.Fatalf("error %T is not a *SafetyError: %v", err, err)
			}
			if serr.RuleID != "test-rule" {
				t.Errorf("RuleID = %q", serr.RuleID)
			}
			if serr.Variable != tt.variable {
				t.Errorf("Variable = %q, want %q", serr.Variable, tt.variable)
			}
		})
	}
}

func TestValidateRejectsStructuralProblems(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{
			name: "missing id",
			rule: Rule{TargetType: "t", Message: "m", Predicate: &Equals{Path: changeset.MustParsePath("after.x"), Value: 1}},
		},
		{
			name: "missing target type",
			rule: Rule{ID: "r", Message: "m", Predicate: &Equals{Path: changeset.MustParsePath("after.x"), Value: 1}},
		},
		{
			name: "missing message",
			rule: Rule{ID: "r", TargetType: "t", Predicate: &Equals{Path: changeset.MustParsePath("after.x"), Value: 1}},
		},
		{
			name: "missing predicate",
			rule: Rule{ID: "r", TargetType: "t", Message: "m"},
		},
		{
			name: "invalid severity",
			rule: Rule{ID: "r", TargetType: "t", Message: "m", Severity: "fatal",
				Predicate: &Equals{Path: changeset.MustParsePath("after.x"), Value: 1}},
		},
		{
			name: "unbound variable outside negation",
			rule: validRule(&Equals{Path: changeset.MustParsePath("$ghost.x"), Value: 1}),
		},
		{
			name: "shadowed binding",
			rule: validRule(&Exists{
				Binding:    "r",
				Collection: changeset.MustParsePath("after.rule"),
				Inner: &Exists{
					Binding:    "r",
					Collection: changeset.MustParsePath("$r.keys"),
				},
			}),
		},
		{
			name: "empty conjunction",
			rule: validRule(&And{}),
		},
		{
			name: "negation without operand",
			rule: validRule(&Not{}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.rule)
			if err == nil {
				t.Fatal("Validate accepted a malformed rule")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not a *ParseError: %v", err, err)
			}
		})
	}
}

func TestBuiltinsAreValid(t *testing.T) {
	builtins := Builtins()
	if len(builtins) == 0 {
		t.Fatal("no built-in rules")
	}

	seen := make(map[string]bool)
	for i := range builtins {
		r := &builtins[i]
		if err := Validate(r); err != nil {
			t.Errorf("built-in rule %s is invalid: %v", r.ID, err)
		}
		if seen[r.ID] {
			t.Errorf("duplicate built-in rule id %s", r.ID)
		}
		seen[r.ID] = true
		if !r.Enabled {
			t.Errorf("built-in rule %s should be enabled", r.ID)
		}
	}
}
