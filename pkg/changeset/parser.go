package changeset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ParseError reports a malformed change-set document. The run aborts
// before any evaluation starts; a partial change set is never evaluated.
type ParseError struct {
	// Source is the file path or stream name the document came from.
	Source string

	// Address is the offending resource change, when one was identified.
	Address string

	// Err is the underlying decode or validation failure.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("change set %s: resource %s: %v", e.Source, e.Address, e.Err)
	}
	return fmt.Sprintf("change set %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// changeSetDocument is the wire shape of a change-set document. It follows
// the resource_changes layout emitted by plan tooling: each entry nests the
// before/after trees under a change object.
type changeSetDocument struct {
	FormatVersion   string             `json:"format_version"`
	ResourceChanges []resourceDocument `json:"resource_changes"`
}

type resourceDocument struct {
	Address string         `json:"address" validate:"required"`
	Type    string         `json:"type" validate:"required"`
	Change  changeDocument `json:"change"`
}

type changeDocument struct {
	Actions []string `json:"actions"`
	Before  any      `json:"before"`
	After   any      `json:"after"`
}

// Parser decodes and validates change-set documents.
type Parser struct {
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewParser creates a change-set parser.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{
		logger:   logger.With().Str("component", "changeset-parser").Logger(),
		validate: validator.New(),
	}
}

// ParseFile reads and parses a change-set document from a file.
func (p *Parser) ParseFile(path string) (*ChangeSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Source: path, Err: err}
	}
	return p.Parse(data, path)
}

// Parse decodes a change-set document. source names the origin for error
// reporting (a file path, or something like "stdin").
func (p *Parser) Parse(data []byte, source string) (*ChangeSet, error) {
	var doc changeSetDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	cs := &ChangeSet{
		FormatVersion: doc.FormatVersion,
		Resources:     make([]ResourceChange, 0, len(doc.ResourceChanges)),
	}

	seen := make(map[string]bool, len(doc.ResourceChanges))
	for i := range doc.ResourceChanges {
		rd := &doc.ResourceChanges[i]
		if err := p.validate.Struct(rd); err != nil {
			return nil, &ParseError{Source: source, Address: rd.Address, Err: err}
		}
		if seen[rd.Address] {
			return nil, &ParseError{
				Source:  source,
				Address: rd.Address,
				Err:     fmt.Errorf("duplicate resource address"),
			}
		}
		seen[rd.Address] = true

		cs.Resources = append(cs.Resources, ResourceChange{
			Address: rd.Address,
			Type:    rd.Type,
			Actions: rd.Change.Actions,
			Before:  rd.Change.Before,
			After:   rd.Change.After,
		})
	}

	p.logger.Debug().
		Str("source", source).
		Int("resources", len(cs.Resources)).
		Msg("Change set parsed")

	return cs, nil
}
