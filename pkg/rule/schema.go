package rule

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// documentSchema is the CUE schema every rule document must satisfy before
// it is decoded. Shape problems (unknown predicate forms, bad path syntax,
// stray fields) are caught here with CUE's error positions rather than
// surfacing as odd decode results later.
const documentSchema = `
#Ident: =~"^[A-Za-z_][A-Za-z0-9_]*$"

// A path expression: optional $binding root, then key, index, and
// wildcard steps.
#Path: =~"^\\$?[A-Za-z_][A-Za-z0-9_-]*(\\.[A-Za-z_][A-Za-z0-9_-]*|\\[[0-9]+\\]|\\[\\*\\])*$"

#Predicate: {
	equals: {
		path:  #Path
		value: _
	}
} | {
	not_equals: {
		path:  #Path
		value: _
	}
} | {
	exists: {
		bind:   #Ident
		in:     #Path
		where?: #Predicate
	}
} | {
	not: #Predicate
} | {
	all: [...#Predicate]
}

#Rule: {
	id:           =~"^[a-z0-9][a-z0-9._-]*$"
	description?: string
	target_type:  string & !=""
	severity?:    "info" | "warning" | "error" | "critical"
	message:      string & !=""
	enabled?:     bool
	match:        #Predicate
}

#Document: {
	version: 1
	rules: [...#Rule]
}
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

// compiledSchema compiles the document schema once and returns the
// #Document definition.
func compiledSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(documentSchema)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("failed to compile rule schema: %w", err)
			return
		}
		schemaValue = v.LookupPath(cue.ParsePath("#Document"))
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("failed to resolve rule schema: %w", err)
		}
	})
	return schemaValue, schemaErr
}

// validateDocument checks a decoded rule document against the schema.
func validateDocument(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	ctx := schema.Context()
	dataVal := ctx.Encode(doc)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}

	return nil
}
