package config

import (
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// configSchema constrains the changeguard.cue configuration file. Unknown
// fields are rejected; every field has a default so an empty file is a
// valid configuration.
const configSchema = `
#Config: {
	rules: {
		paths: [...string] | *[]
		builtin: bool | *true
	}
	evaluation: {
		workers: int & >=1 | *1
	}
	history: {
		enabled: bool | *false
		path:    string | *"changeguard.db"
		keep:    int & >=0 | *50
	}
	telemetry: {
		log_level:  "trace" | "debug" | "info" | "warn" | "error" | "fatal" | *"info"
		log_format: "console" | "json" | *"console"
		metrics: {
			enabled:        bool | *false
			listen_address: string | *":9090"
		}
		tracing: {
			enabled:  bool | *false
			exporter: "stdout" | "otlp" | "none" | *"stdout"
			endpoint: string | *""
		}
	}
}
`

var (
	schemaOnce     sync.Once
	compiledSchema cue.Value
	schemaErr      error
)

func schema(ctx *cue.Context) (cue.Value, error) {
	schemaOnce.Do(func() {
		v := ctx.CompileString(configSchema)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling config schema: %w", err)
			return
		}
		compiledSchema = v.LookupPath(cue.ParsePath("#Config"))
	})
	return compiledSchema, schemaErr
}

// ValidationError describes one problem found in a configuration file.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return e.Message
}

// Parser loads and validates CUE configuration files.
type Parser struct {
	ctx      *cue.Context
	validate *validator.Validate
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	return &Parser{
		ctx:      cuecontext.New(),
		validate: validator.New(),
	}
}

// LoadFile loads a configuration from a CUE file. Schema defaults fill
// every omitted field.
func (p *Parser) LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return p.Parse(string(content), path)
}

// Parse loads a configuration from inline CUE content. filename names the
// origin for error positions.
func (p *Parser) Parse(content, filename string) (*Config, error) {
	val := p.ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, firstValidationError(err)
	}

	sch, err := schema(p.ctx)
	if err != nil {
		return nil, err
	}

	unified := sch.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, firstValidationError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := p.validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// firstValidationError converts a CUE error into the first positioned
// ValidationError it contains.
func firstValidationError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	e := errs[0]
	pos := errors.Positions(e)
	ve := ValidationError{Message: errors.Details(e, nil)}
	if len(pos) > 0 {
		ve.File = pos[0].Filename()
		ve.Line = pos[0].Line()
		ve.Column = pos[0].Column()
	}
	return ve
}
