// Package sandbox implements the tool invocation mediation pipeline of
// section 4.7: schema validation, capability gating, policy
// decision, bounded execution, output validation, and normalization.
package sandbox

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Schema wraps a compiled JSON Schema, grounded on
// goadesign-goa-ai/registry/service.go's validatePayloadAgainstSchema
// compile-then-validate pattern.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles raw JSON Schema document bytes. A nil/empty doc
// compiles to a Schema that accepts anything.
func CompileSchema(name string, doc []byte) (*Schema, error) {
	if len(doc) == 0 {
		return &Schema{}, nil
	}
	var schemaDoc any
	if err := json.Unmarshal(doc, &schemaDoc); err != nil {
		return nil, core.NewError(core.CodeInvalidInput, "unmarshal schema "+name+": "+err.Error())
	}
	c := jsonschema.NewCompiler()
	resourceName := fmt.Sprintf("%s.json", name)
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return nil, core.NewError(core.CodeInvalidInput, "add schema resource "+name+": "+err.Error())
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, core.NewError(core.CodeInvalidInput, "compile schema "+name+": "+err.Error())
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks raw JSON bytes against the schema. A Schema with no
// compiled document (the zero value) accepts any input.
func (s *Schema) Validate(raw []byte) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return core.NewError(core.CodeInvalidInput, "invalid json: "+err.Error())
	}
	if err := s.compiled.Validate(value); err != nil {
		return core.NewError(core.CodeInvalidInput, "schema validation: "+err.Error())
	}
	return nil
}
