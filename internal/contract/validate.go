package contract

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
)

func compiledSchema() (*cue.Context, cue.Value) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaVal = schemaCtx.CompileString(schemaSource)
		if err := schemaVal.Err(); err != nil {
			panic(fmt.Sprintf("contract: embedded schema.cue does not compile: %v", err))
		}
	})
	return schemaCtx, schemaVal
}

// SchemaError is one schema violation in a contract document.
type SchemaError struct {
	Path    string
	Message string
}

func (e SchemaError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidateSchema unifies a document with the embedded schema and returns
// every violation found, not just the first.
func ValidateSchema(doc map[string]any) []SchemaError {
	ctx, schema := compiledSchema()

	val := ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return []SchemaError{{Message: err.Error()}}
	}

	err := schema.Unify(val).Validate(cue.Concrete(false))
	if err == nil {
		return nil
	}

	var out []SchemaError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		out = append(out, SchemaError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}
	return out
}
