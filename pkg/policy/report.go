package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/changeguard/changeguard/pkg/rule"
)

// Violation records one rule failing against one resource.
type Violation struct {
	RuleID   string        `json:"rule_id"`
	Severity rule.Severity `json:"severity"`
	Address  string        `json:"address"`
	Message  string        `json:"message"`
}

// EvaluationReport is the outcome of one engine run.
type EvaluationReport struct {
	RunID         string        `json:"run_id"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
	Duration      time.Duration `json:"duration_ns"`
	ResourceCount int           `json:"resource_count"`
	RuleCount     int           `json:"rule_count"`
	Violations    []Violation   `json:"violations"`
	Passed        bool          `json:"passed"`
}

// RenderJSON writes the report as indented JSON. Violations marshal as
// an empty array, never null, so consumers can index unconditionally.
func (r *EvaluationReport) RenderJSON(w io.Writer) error {
	out := *r
	if out.Violations == nil {
		out.Violations = []Violation{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}

// RenderText writes a human-readable report: one line per violation,
// then a summary line.
func (r *EvaluationReport) RenderText(w io.Writer) error {
	for _, v := range r.Violations {
		if _, err := fmt.Fprintf(w, "%s  %s  %s: %s\n", strings.ToUpper(string(v.Severity)), v.RuleID, v.Address, v.Message); err != nil {
			return err
		}
	}
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	_, err := fmt.Fprintf(w, "%s: %d resources, %d rules, %d violations (%s)\n",
		status, r.ResourceCount, r.RuleCount, len(r.Violations), r.Duration.Round(time.Microsecond))
	return err
}

// renderMessage substitutes {address} and {binding} placeholders in a
// rule's message template. Bindings captured during evaluation render
// with %v; placeholders with no matching binding pass through verbatim.
func renderMessage(tmpl, address string, captured map[string]any) string {
	out := strings.ReplaceAll(tmpl, "{address}", address)
	for name, val := range captured {
		out = strings.ReplaceAll(out, "{"+name+"}", fmt.Sprintf("%v", val))
	}
	return out
}
