package synth

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed runbook_schema.json
var resultSchemaJSON string

var (
	compileOnce  sync.Once
	resultSchema *jsonschema.Schema
	compileErr   error
)

// ResultSchema returns the compiled JSON Schema for model synthesis output.
func ResultSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("runbook_schema.json", strings.NewReader(resultSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("runbook_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile runbook schema: %w", err)
			return
		}
		resultSchema = schema
	})
	return resultSchema, compileErr
}
