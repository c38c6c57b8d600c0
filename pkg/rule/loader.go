package rule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/changeguard/changeguard/pkg/changeset"
	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed rule source. Loading fails fast: one bad
// rule rejects the whole rule set.
type ParseError struct {
	// Source is the file the rule came from, when it came from a file.
	Source string

	// RuleID is the offending rule, when one was identified.
	RuleID string

	// Err is the underlying decode, schema, or structural failure.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch {
	case e.Source != "" && e.RuleID != "":
		return fmt.Sprintf("rule %s (%s): %v", e.RuleID, e.Source, e.Err)
	case e.Source != "":
		return fmt.Sprintf("rule source %s: %v", e.Source, e.Err)
	case e.RuleID != "":
		return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ruleFileSuffixes are the file extensions the loader recognizes.
var ruleFileSuffixes = []string{".yaml", ".yml", ".json"}

func hasRuleSuffix(path string) bool {
	for _, s := range ruleFileSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// Loader loads rule sets from files and directories.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate
	cache    map[string][]Rule
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
}

// NewLoader creates a new rule loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:   logger.With().Str("component", "rule-loader").Logger(),
		validate: validator.New(),
		cache:    make(map[string][]Rule),
	}
}

// LoadFromPaths loads rules from a list of file or directory paths. Rule
// IDs must be unique across the whole load.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Rule, error) {
	var all []Rule

	for _, path := range paths {
		rules, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}

	seen := make(map[string]string, len(all))
	for i := range all {
		if prev, dup := seen[all[i].ID]; dup {
			return nil, &ParseError{
				RuleID: all[i].ID,
				Err:    fmt.Errorf("duplicate rule id (already defined in %s)", prev),
			}
		}
		seen[all[i].ID] = "rule set"
	}

	l.logger.Info().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Rules loaded from paths")

	return all, nil
}

// loadFromPath loads rules from a single path (file or directory).
func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	return l.loadFromFile(path)
}

// loadFromDirectory loads all rule files from a directory recursively.
// Unlike directory scans for optional assets, a broken rule file aborts
// the walk: evaluating with a silently dropped rule would be worse than
// failing.
func (l *Loader) loadFromDirectory(_ context.Context, dirPath string) ([]Rule, error) {
	var rules []Rule

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !hasRuleSuffix(path) {
			return nil
		}

		fileRules, err := l.loadFromFile(path)
		if err != nil {
			return err
		}
		rules = append(rules, fileRules...)
		return nil
	})

	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			return nil, pe
		}
		return nil, &ParseError{Source: dirPath, Err: err}
	}

	return rules, nil
}

// loadFromFile loads rules from a single file, consulting the cache first.
func (l *Loader) loadFromFile(filePath string) ([]Rule, error) {
	l.mu.RLock()
	if cached, exists := l.cache[filePath]; exists {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ParseError{Source: filePath, Err: err}
	}

	rules, err := l.ParseDocument(data, filePath)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[filePath] = rules
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", filePath).
		Int("rules", len(rules)).
		Msg("Rules loaded from file")

	return rules, nil
}

// ParseDocument decodes one rule document: YAML (or JSON) decode, CUE
// schema validation, predicate construction, then the per-rule structural
// and negation-safety checks. source names the origin for error reporting.
func (l *Loader) ParseDocument(data []byte, source string) ([]Rule, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	if err := validateDocument(doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	rawRules, _ := doc["rules"].([]any)
	rules := make([]Rule, 0, len(rawRules))
	for _, raw := range rawRules {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, &ParseError{Source: source, Err: fmt.Errorf("rule entry is not a mapping")}
		}

		r, err := l.ruleFromDocument(m)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Source = source
				return nil, pe
			}
			return nil, &ParseError{Source: source, Err: err}
		}

		if err := l.validate.Struct(r); err != nil {
			return nil, &ParseError{Source: source, RuleID: r.ID, Err: err}
		}
		if err := Validate(&r); err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Source = source
			}
			return nil, err
		}

		rules = append(rules, r)
	}

	return rules, nil
}

// ruleFromDocument builds a Rule from one decoded rule mapping. The CUE
// schema has already constrained the shape; remaining failures here are
// path parse errors and the like.
func (l *Loader) ruleFromDocument(m map[string]any) (Rule, error) {
	r := Rule{
		Severity: SeverityError,
		Enabled:  true,
	}

	r.ID, _ = m["id"].(string)
	r.Description, _ = m["description"].(string)
	r.TargetType, _ = m["target_type"].(string)
	r.Message, _ = m["message"].(string)
	if sev, ok := m["severity"].(string); ok {
		r.Severity = Severity(sev)
	}
	if enabled, ok := m["enabled"].(bool); ok {
		r.Enabled = enabled
	}

	pred, err := predicateFromDocument(m["match"])
	if err != nil {
		return Rule{}, &ParseError{RuleID: r.ID, Err: err}
	}
	r.Predicate = pred

	return r, nil
}

// predicateFromDocument builds a predicate tree from its document form.
// Each node is a single-key mapping naming the node kind.
func predicateFromDocument(v any) (Predicate, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("predicate node must be a single-key mapping, got %T", v)
	}

	for kind, body := range m {
		switch kind {
		case "equals", "not_equals":
			cmp, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s node must be a mapping", kind)
			}
			rawPath, _ := cmp["path"].(string)
			path, err := changeset.ParsePath(rawPath)
			if err != nil {
				return nil, err
			}
			value, hasValue := cmp["value"]
			if !hasValue {
				return nil, fmt.Errorf("%s node is missing a value", kind)
			}
			if kind == "equals" {
				return &Equals{Path: path, Value: value}, nil
			}
			return &NotEquals{Path: path, Value: value}, nil

		case "exists":
			ex, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("exists node must be a mapping")
			}
			binding, _ := ex["bind"].(string)
			rawIn, _ := ex["in"].(string)
			collection, err := changeset.ParsePath(rawIn)
			if err != nil {
				return nil, err
			}
			node := &Exists{Binding: binding, Collection: collection}
			if where, hasWhere := ex["where"]; hasWhere {
				inner, err := predicateFromDocument(where)
				if err != nil {
					return nil, err
				}
				node.Inner = inner
			}
			return node, nil

		case "not":
			inner, err := predicateFromDocument(body)
			if err != nil {
				return nil, err
			}
			return &Not{Inner: inner}, nil

		case "all":
			list, ok := body.([]any)
			if !ok {
				return nil, fmt.Errorf("all node must be a sequence")
			}
			node := &And{Children: make([]Predicate, 0, len(list))}
			for _, child := range list {
				inner, err := predicateFromDocument(child)
				if err != nil {
					return nil, err
				}
				node.Children = append(node.Children, inner)
			}
			return node, nil

		default:
			return nil, fmt.Errorf("unknown predicate kind %q", kind)
		}
	}

	return nil, fmt.Errorf("empty predicate node")
}

// ClearCache clears the per-file rule cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string][]Rule)
	l.logger.Debug().Msg("Rule cache cleared")
}

// Watch starts watching paths for rule changes and invokes reloadFn with
// the freshly loaded rule set after each change, debounced.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Rule) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := l.watchDirectory(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else {
			if err := watcher.Add(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			}
		}
	}

	go l.processEvents(ctx, paths, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching rule paths")

	return nil
}

// watchDirectory adds a directory tree to the watcher.
func (l *Loader) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

// processEvents processes file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, paths []string, reloadFn func([]Rule) error) {
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if l.watcher != nil {
				_ = l.watcher.Close()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !hasRuleSuffix(event.Name) {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Rule file changed")

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := l.triggerReload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload rules")
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload reloads all rules from watched paths.
func (l *Loader) triggerReload(ctx context.Context, paths []string, reloadFn func([]Rule) error) error {
	l.logger.Info().Msg("Reloading rules...")

	rules, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}

	if err := reloadFn(rules); err != nil {
		return fmt.Errorf("failed to apply reloaded rules: %w", err)
	}

	l.logger.Info().
		Int("count", len(rules)).
		Msg("Rules reloaded successfully")

	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
