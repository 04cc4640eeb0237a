package utils

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchemaValidator validates raw JSON documents against named,
// precompiled schemas.
type JSONSchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// LoadSchema compiles and registers a JSON schema under a name
func (v *JSONSchemaValidator) LoadSchema(name, schema string) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	compiledSchema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	v.schemas[name] = compiledSchema
	return nil
}

// ValidateJSON validates a raw JSON document against a named schema
func (v *JSONSchemaValidator) ValidateJSON(name string, data []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages string
		for i, err := range result.Errors() {
			if i > 0 {
				errorMessages += "; "
			}
			errorMessages += fmt.Sprintf("%s: %s", err.Field(), err.Description())
		}
		return fmt.Errorf("validation failed: %s", errorMessages)
	}

	return nil
}
