package util

import (
	"reflect"
	"strings"

	"github.com/lizzyg/llmbridge/internal/core"
)

// ToolParameters builds a tool parameter object directly from a struct type
// using reflection. Field names follow json tags; `description:"..."` sets the
// property description. Non-pointer fields are required unless tagged
// `required:"false"`; pointer fields are optional unless tagged `required:"true"`.
// A nil or non-struct argument yields nil, meaning the tool takes no arguments.
func ToolParameters(paramStruct any) *core.JSONObjectSchema {
	if paramStruct == nil {
		return nil
	}
	t := reflect.TypeOf(paramStruct)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	obj := structSchema(t, "", map[reflect.Type]bool{})
	if obj.Properties.Len() == 0 {
		return nil
	}
	return obj
}

func structSchema(t reflect.Type, description string, seen map[reflect.Type]bool) *core.JSONObjectSchema {
	obj := core.NewObjectSchema(description)
	seen[t] = true
	defer delete(seen, t)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := field.Name
		if parts := strings.Split(jsonTag, ","); parts[0] != "" {
			name = parts[0]
		}

		required := field.Type.Kind() != reflect.Ptr
		switch field.Tag.Get("required") {
		case "false":
			required = false
		case "true":
			required = true
		}

		obj.AddProperty(name, typeSchema(field.Type, field.Tag.Get("description"), seen))
		if required {
			obj.Required = append(obj.Required, name)
		}
	}
	return obj
}

// typeSchema maps a Go type to a schema element. Pointers become nullable.
func typeSchema(t reflect.Type, description string, seen map[reflect.Type]bool) core.JSONSchemaElement {
	if t.Kind() == reflect.Ptr {
		inner := typeSchema(t.Elem(), description, seen)
		return &core.JSONAnyOfSchema{AnyOf: []core.JSONSchemaElement{inner, &core.JSONNullSchema{}}}
	}
	switch t.Kind() {
	case reflect.String:
		return &core.JSONStringSchema{Description: description}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &core.JSONIntegerSchema{Description: description}
	case reflect.Float32, reflect.Float64:
		return &core.JSONNumberSchema{Description: description}
	case reflect.Bool:
		return &core.JSONBooleanSchema{Description: description}
	case reflect.Array, reflect.Slice:
		arr := &core.JSONArraySchema{Description: description}
		if t.Elem().Kind() != reflect.Interface {
			arr.Items = typeSchema(t.Elem(), "", seen)
		}
		return arr
	case reflect.Struct:
		if seen[t] {
			// recursive types are cut off at the second visit
			return core.NewObjectSchema(description)
		}
		return structSchema(t, description, seen)
	}
	// maps, interfaces and anything else are free-form objects
	return core.NewObjectSchema(description)
}
