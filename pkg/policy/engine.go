package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/changeguard/changeguard/pkg/changeset"
	"github.com/changeguard/changeguard/pkg/rule"
	"github.com/changeguard/changeguard/pkg/telemetry"
)

// Engine evaluates a loaded rule set against change sets.
type Engine struct {
	mu      sync.RWMutex
	rules   []rule.Rule
	logger  zerolog.Logger
	workers int
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of evaluation goroutines. Values below 1
// fall back to sequential evaluation. Results are identical regardless
// of worker count.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithMetrics attaches a metrics registry for run counters and
// violation tallies.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer attaches a tracer; each run becomes one span.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// NewEngine creates an engine with no rules loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:  logger.With().Str("component", "policy-engine").Logger(),
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadRules validates and installs rules, replacing any previously
// loaded set. Rule IDs must be unique across the whole set; a single
// invalid rule rejects the load.
func (e *Engine) LoadRules(rules []rule.Rule) error {
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		if err := rule.Validate(&rules[i]); err != nil {
			return err
		}
		if seen[rules[i].ID] {
			return fmt.Errorf("duplicate rule id %q", rules[i].ID)
		}
		seen[rules[i].ID] = true
	}

	e.mu.Lock()
	e.rules = make([]rule.Rule, len(rules))
	copy(e.rules, rules)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SetRulesLoaded(len(rules))
	}
	e.logger.Info().Int("rules", len(rules)).Msg("Rules loaded")
	return nil
}

// Rules returns a copy of the loaded rule set.
func (e *Engine) Rules() []rule.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]rule.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// SetRuleEnabled toggles a rule by ID without reloading the set.
func (e *Engine) SetRuleEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("rule %q not loaded", id)
}

// pair is one (resource, rule) evaluation unit. Pairs are generated
// resource-major so the report's violation order follows the change
// set, then the rule set.
type pair struct {
	resource *changeset.ResourceChange
	rule     *rule.Rule
}

// Evaluate runs every applicable (resource, rule) pair and assembles a
// report. A rule applies to a resource when the rule is enabled and its
// target type matches the resource's type. The report passes iff it
// contains no violations; a change set that matches no rules passes
// vacuously.
func (e *Engine) Evaluate(ctx context.Context, cs *changeset.ChangeSet) (*EvaluationReport, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := e.logger.With().Str("run_id", runID).Logger()

	if e.tracer != nil {
		var span oteltrace.Span
		ctx, span = e.tracer.StartRunSpan(ctx, runID)
		defer span.End()
		span.SetAttributes(attribute.Int("changeguard.resources", len(cs.Resources)))
	}
	if e.metrics != nil {
		e.metrics.RunStarted()
	}

	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var pairs []pair
	for i := range cs.Resources {
		for j := range rules {
			r := &rules[j]
			if !r.Enabled || r.TargetType != cs.Resources[i].Type {
				continue
			}
			pairs = append(pairs, pair{resource: &cs.Resources[i], rule: r})
		}
	}
	log.Debug().
		Int("resources", len(cs.Resources)).
		Int("rules", len(rules)).
		Int("pairs", len(pairs)).
		Msg("Starting evaluation")

	results, err := e.runPairs(ctx, pairs)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RunCompleted("error", time.Since(start))
		}
		return nil, err
	}

	// Dedup by (rule, address): a resource violates a rule at most once
	// no matter how many witnesses failed.
	seen := make(map[string]bool)
	var violations []Violation
	for i, res := range results {
		if res.satisfied {
			continue
		}
		p := pairs[i]
		key := p.rule.ID + "\x00" + p.resource.Address
		if seen[key] {
			continue
		}
		seen[key] = true
		v := Violation{
			RuleID:   p.rule.ID,
			Severity: p.rule.Severity,
			Address:  p.resource.Address,
			Message:  renderMessage(p.rule.Message, p.resource.Address, res.captured),
		}
		violations = append(violations, v)
		if e.metrics != nil {
			e.metrics.ViolationFound(p.rule.ID, string(p.rule.Severity))
		}
	}

	report := &EvaluationReport{
		RunID:         runID,
		EvaluatedAt:   start.UTC(),
		Duration:      time.Since(start),
		ResourceCount: len(cs.Resources),
		RuleCount:     len(rules),
		Violations:    violations,
		Passed:        len(violations) == 0,
	}

	if e.metrics != nil {
		status := "passed"
		if !report.Passed {
			status = "failed"
		}
		e.metrics.RunCompleted(status, report.Duration)
	}
	log.Info().
		Bool("passed", report.Passed).
		Int("violations", len(violations)).
		Dur("duration", report.Duration).
		Msg("Evaluation complete")
	return report, nil
}

// pairResult holds the outcome of one evaluation unit.
type pairResult struct {
	satisfied bool
	captured  map[string]any
}

// runPairs evaluates every pair, sequentially or across workers. Each
// worker owns a disjoint stripe of the preallocated results slice, so
// output order is fixed by pair order, not scheduling.
func (e *Engine) runPairs(ctx context.Context, pairs []pair) ([]pairResult, error) {
	results := make([]pairResult, len(pairs))

	evalOne := func(i int) error {
		ok, captured, err := evaluate(pairs[i].resource, pairs[i].rule)
		if err != nil {
			return err
		}
		results[i] = pairResult{satisfied: ok, captured: captured}
		return nil
	}

	if e.workers <= 1 || len(pairs) <= 1 {
		for i := range pairs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := evalOne(i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	workers := e.workers
	if workers > len(pairs) {
		workers = len(pairs)
	}
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(pairs); i += workers {
				if err := ctx.Err(); err != nil {
					errs[w] = err
					return
				}
				if err := evalOne(i); err != nil {
					errs[w] = err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
