package util

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/lizzyg/llmbridge/internal/core"
)

// GenerateJSONSchema returns a JSON schema string for the given object type.
// The object should be a pointer to a struct to capture fields and tags.
// Definitions are inlined so the result can be handed to providers that do
// not understand "$ref".
func GenerateJSONSchema(obj any) string {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := r.Reflect(obj)
	b, _ := json.Marshal(schema)
	return string(b)
}

// SchemaFromType reflects obj into the provider-neutral schema model.
func SchemaFromType(obj any) (core.JSONSchemaElement, error) {
	el, err := core.ParseJSONSchema([]byte(GenerateJSONSchema(obj)))
	if err != nil {
		return nil, fmt.Errorf("schema for %T: %w", obj, err)
	}
	return el, nil
}

// IsStringType reports whether T is string for generics handling.
func IsStringType[T any]() bool {
	var zero T
	return reflect.TypeOf(zero) == reflect.TypeOf("")
}
