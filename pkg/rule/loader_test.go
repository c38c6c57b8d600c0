package rule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

const versioningRuleDoc = `
version: 1
rules:
  - id: bucket-versioning-enabled
    description: Bucket versioning must be enabled
    target_type: aws_s3_bucket_versioning
    severity: error
    message: "versioning must be enabled for {address}"
    match:
      exists:
        bind: vc
        in: after.versioning_configuration
        where:
          equals: {path: $vc.status, value: Enabled}
`

func TestParseDocument(t *testing.T) {
	rules, err := testLoader().ParseDocument([]byte(versioningRuleDoc), "test.yaml")
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	r := rules[0]
	if r.ID != "bucket-versioning-enabled" {
		t.Errorf("ID = %q", r.ID)
	}
	if r.TargetType != "aws_s3_bucket_versioning" {
		t.Errorf("TargetType = %q", r.TargetType)
	}
	if r.Severity != SeverityError {
		t.Errorf("Severity = %q", r.Severity)
	}
	if !r.Enabled {
		t.Error("Enabled should default to true")
	}

	ex, ok := r.Predicate.(*Exists)
	if !ok {
		t.Fatalf("predicate is %T, want *Exists", r.Predicate)
	}
	if ex.Binding != "vc" {
		t.Errorf("Binding = %q", ex.Binding)
	}
	if ex.Collection.String() != "after.versioning_configuration" {
		t.Errorf("Collection = %q", ex.Collection)
	}
	eq, ok := ex.Inner.(*Equals)
	if !ok {
		t.Fatalf("inner predicate is %T, want *Equals", ex.Inner)
	}
	if eq.Path.Variable() != "vc" {
		t.Errorf("inner path variable = %q", eq.Path.Variable())
	}
	if eq.Value != "Enabled" {
		t.Errorf("inner value = %v", eq.Value)
	}
}

func TestParseDocumentDefaults(t *testing.T) {
	doc := `
version: 1
rules:
  - id: minimal-rule
    target_type: aws_kms_key
    message: "rotation required for {address}"
    match:
      equals: {path: after.enable_key_rotation, value: true}
`
	rules, err := testLoader().ParseDocument([]byte(doc), "test.yaml")
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	if rules[0].Severity != SeverityError {
		t.Errorf("default severity = %q, want error", rules[0].Severity)
	}
	if !rules[0].Enabled {
		t.Error("rules should be enabled by default")
	}
}

func TestParseDocumentNestedPredicates(t *testing.T) {
	doc := `
version: 1
rules:
  - id: encryption-customer-key
    target_type: aws_s3_bucket_server_side_encryption_configuration
    message: "encryption for {address} must use a customer key"
    match:
      exists:
        bind: r
        in: after.rule
        where:
          exists:
            bind: k
            in: $r.apply_server_side_encryption_by_default
            where:
              all:
                - equals: {path: $k.sse_algorithm, value: "aws:kms"}
                - not_equals: {path: $k.kms_master_key_id, value: null}
`
	rules, err := testLoader().ParseDocument([]byte(doc), "test.yaml")
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}

	outer := rules[0].Predicate.(*Exists)
	inner, ok := outer.Inner.(*Exists)
	if !ok {
		t.Fatalf("inner node is %T, want *Exists", outer.Inner)
	}
	and, ok := inner.Inner.(*And)
	if !ok {
		t.Fatalf("innermost node is %T, want *And", inner.Inner)
	}
	if len(and.Children) != 2 {
		t.Fatalf("got %d conjuncts, want 2", len(and.Children))
	}
	ne, ok := and.Children[1].(*NotEquals)
	if !ok {
		t.Fatalf("second conjunct is %T, want *NotEquals", and.Children[1])
	}
	if ne.Value != nil {
		t.Errorf("not_equals value = %v, want nil", ne.Value)
	}
}

func TestParseDocumentRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "not yaml",
			doc:  "{[",
		},
		{
			name: "wrong version",
			doc: `
version: 2
rules: []
`,
		},
		{
			name: "missing target_type",
			doc: `
version: 1
rules:
  - id: broken
    message: "x"
    match:
      equals: {path: after.x, value: 1}
`,
		},
		{
			name: "unknown predicate kind",
			doc: `
version: 1
rules:
  - id: broken
    target_type: t
    message: "x"
    match:
      some: {path: after.x, value: 1}
`,
		},
		{
			name: "invalid path syntax",
			doc: `
version: 1
rules:
  - id: broken
    target_type: t
    message: "x"
    match:
      equals: {path: "after..x", value: 1}
`,
		},
		{
			name: "invalid severity",
			doc: `
version: 1
rules:
  - id: broken
    target_type: t
    severity: fatal
    message: "x"
    match:
      equals: {path: after.x, value: 1}
`,
		},
		{
			name: "uppercase rule id",
			doc: `
version: 1
rules:
  - id: Broken
    target_type: t
    message: "x"
    match:
      equals: {path: after.x, value: 1}
`,
		},
		{
			name: "stray rule field",
			doc: `
version: 1
rules:
  - id: broken
    target_type: t
    message: "x"
    unexpected: true
    match:
      equals: {path: after.x, value: 1}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testLoader().ParseDocument([]byte(tt.doc), "test.yaml")
			if err == nil {
				t.Fatal("expected parse error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not a *ParseError", err)
			}
		})
	}
}

func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()

	writeFile := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	writeFile("versioning.yaml", versioningRuleDoc)
	writeFile("rotation.yml", `
version: 1
rules:
  - id: kms-rotation
    target_type: aws_kms_key
    message: "rotation required for {address}"
    match:
      equals: {path: after.enable_key_rotation, value: true}
`)
	writeFile("notes.txt", "not a rule file")

	rules, err := testLoader().LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
}

func TestLoadFromPathsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yaml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(versioningRuleDoc), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	_, err := testLoader().LoadFromPaths(context.Background(), []string{dir})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("error %T is not a *ParseError", err)
	}
	if perr.RuleID != "bucket-versioning-enabled" {
		t.Errorf("RuleID = %q", perr.RuleID)
	}
}

func TestLoadFromPathsBrokenFileAborts(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(versioningRuleDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("version: 3"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := testLoader().LoadFromPaths(context.Background(), []string{dir}); err == nil {
		t.Fatal("expected load to fail on the broken file")
	}
}
