package streams

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

type schemaKey struct{ eventType, version string }

// Registry holds the compiled payload schema of every event runbooker emits.
// It is read-only once built and safe for concurrent use.
type Registry struct {
	schemas map[schemaKey]*jsonschema.Schema
}

// NewRegistry compiles the built-in event schemas.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[schemaKey]*jsonschema.Schema, len(baseDefinitions))}
	for _, def := range baseDefinitions {
		url := fmt.Sprintf("runbooker://events/%s/%s.json", def.EventType, def.Version)
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader(def.Schema)); err != nil {
			return nil, fmt.Errorf("add %s: %w", url, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", url, err)
		}
		r.schemas[schemaKey{def.EventType, def.Version}] = compiled
	}
	return r, nil
}

// Validate checks the envelope's payload against its event schema.
func (r *Registry) Validate(env Envelope) error {
	schema, ok := r.schemas[schemaKey{env.EventType, env.PayloadVersion}]
	if !ok {
		return fmt.Errorf("no schema for %s/%s", env.EventType, env.PayloadVersion)
	}
	var doc interface{}
	if err := json.Unmarshal(env.Data, &doc); err != nil {
		return fmt.Errorf("%s payload: %w", env.EventType, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s payload: %w", env.EventType, err)
	}
	return nil
}
