package gemini

import (
	"fmt"
	"sort"
	"strings"

	moderr "github.com/lizzyg/llmbridge/errors"
	"github.com/lizzyg/llmbridge/internal/core"
)

// ToGeminiSchema converts a schema element into Gemini's schema dialect.
//
// References are inlined from the definitions of the enclosing root object;
// recursive references fail with ErrUnsupportedSchema. A two-element anyOf of
// X followed by null, without its own description, becomes X with nullable set.
func ToGeminiSchema(el core.JSONSchemaElement) (*Schema, error) {
	m := &schemaMapper{defs: map[string]core.JSONSchemaElement{}, resolving: map[string]bool{}}
	return m.toGemini(el)
}

type schemaMapper struct {
	defs      map[string]core.JSONSchemaElement
	resolving map[string]bool
}

func (m *schemaMapper) toGemini(el core.JSONSchemaElement) (*Schema, error) {
	switch s := el.(type) {
	case *core.JSONObjectSchema:
		for ref, def := range s.Definitions {
			m.defs[ref] = def
		}
		out := &Schema{Type: TypeObject, Description: s.Description}
		if s.Properties != nil && s.Properties.Len() > 0 {
			out.Properties = make(map[string]*Schema, s.Properties.Len())
			for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
				sub, err := m.toGemini(pair.Value)
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", pair.Key, err)
				}
				out.Properties[pair.Key] = sub
				out.PropertyOrdering = append(out.PropertyOrdering, pair.Key)
			}
		}
		if s.Required != nil {
			out.Required = append([]string{}, s.Required...)
		}
		return out, nil
	case *core.JSONArraySchema:
		out := &Schema{Type: TypeArray, Description: s.Description}
		if s.Items != nil {
			items, err := m.toGemini(s.Items)
			if err != nil {
				return nil, fmt.Errorf("items: %w", err)
			}
			out.Items = items
		}
		return out, nil
	case *core.JSONStringSchema:
		return &Schema{Type: TypeString, Description: s.Description, Format: s.Format}, nil
	case *core.JSONIntegerSchema:
		return &Schema{Type: TypeInteger, Description: s.Description}, nil
	case *core.JSONNumberSchema:
		return &Schema{Type: TypeNumber, Description: s.Description}, nil
	case *core.JSONBooleanSchema:
		return &Schema{Type: TypeBoolean, Description: s.Description}, nil
	case *core.JSONEnumSchema:
		return &Schema{Type: TypeString, Description: s.Description, Enum: append([]string{}, s.Values...)}, nil
	case *core.JSONAnyOfSchema:
		if isNullablePair(s) {
			inner, err := m.toGemini(s.AnyOf[0])
			if err != nil {
				return nil, err
			}
			inner.Nullable = true
			return inner, nil
		}
		out := &Schema{Description: s.Description}
		for i, alt := range s.AnyOf {
			sub, err := m.toGemini(alt)
			if err != nil {
				return nil, fmt.Errorf("anyOf[%d]: %w", i, err)
			}
			out.AnyOf = append(out.AnyOf, sub)
		}
		return out, nil
	case *core.JSONNullSchema:
		return &Schema{Type: TypeNull}, nil
	case *core.JSONReferenceSchema:
		return m.resolve(s.Reference)
	case *core.JSONRawSchema:
		parsed, err := core.ParseJSONSchema([]byte(s.Schema))
		if err != nil {
			return nil, err
		}
		return m.toGemini(parsed)
	case nil:
		return nil, fmt.Errorf("%w: nil element", moderr.ErrUnsupportedSchema)
	}
	return nil, fmt.Errorf("%w: %T", moderr.ErrUnsupportedSchema, el)
}

func (m *schemaMapper) resolve(ref string) (*Schema, error) {
	key := ref
	def, ok := m.defs[key]
	if !ok && !strings.HasPrefix(ref, "#/") {
		for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
			if def, ok = m.defs[prefix+ref]; ok {
				key = prefix + ref
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: unresolved reference %q", moderr.ErrUnsupportedSchema, ref)
	}
	if m.resolving[key] {
		return nil, fmt.Errorf("%w: recursive reference %q", moderr.ErrUnsupportedSchema, ref)
	}
	m.resolving[key] = true
	defer delete(m.resolving, key)
	return m.toGemini(def)
}

func isNullablePair(s *core.JSONAnyOfSchema) bool {
	if s.Description != "" || len(s.AnyOf) != 2 {
		return false
	}
	if _, ok := s.AnyOf[1].(*core.JSONNullSchema); !ok {
		return false
	}
	switch s.AnyOf[0].(type) {
	case *core.JSONNullSchema, *core.JSONAnyOfSchema:
		return false
	}
	return true
}

// FromGeminiSchema rebuilds the schema element tree from Gemini's dialect.
// Properties follow propertyOrdering; properties missing from it come after,
// sorted by name.
func FromGeminiSchema(s *Schema) (core.JSONSchemaElement, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil schema", moderr.ErrUnsupportedSchema)
	}
	if s.Nullable {
		cp := *s
		cp.Nullable = false
		inner, err := FromGeminiSchema(&cp)
		if err != nil {
			return nil, err
		}
		return &core.JSONAnyOfSchema{AnyOf: []core.JSONSchemaElement{inner, &core.JSONNullSchema{}}}, nil
	}
	if len(s.AnyOf) > 0 {
		out := &core.JSONAnyOfSchema{Description: s.Description}
		for i, alt := range s.AnyOf {
			el, err := FromGeminiSchema(alt)
			if err != nil {
				return nil, fmt.Errorf("anyOf[%d]: %w", i, err)
			}
			out.AnyOf = append(out.AnyOf, el)
		}
		return out, nil
	}

	t := s.Type
	if t == "" {
		switch {
		case s.Properties != nil:
			t = TypeObject
		case s.Items != nil:
			t = TypeArray
		case len(s.Enum) > 0:
			t = TypeString
		}
	}
	switch Type(strings.ToUpper(string(t))) {
	case TypeString:
		if len(s.Enum) > 0 {
			return &core.JSONEnumSchema{Description: s.Description, Values: append([]string{}, s.Enum...)}, nil
		}
		return &core.JSONStringSchema{Description: s.Description, Format: s.Format}, nil
	case TypeInteger:
		return &core.JSONIntegerSchema{Description: s.Description}, nil
	case TypeNumber:
		return &core.JSONNumberSchema{Description: s.Description}, nil
	case TypeBoolean:
		return &core.JSONBooleanSchema{Description: s.Description}, nil
	case TypeNull:
		return &core.JSONNullSchema{}, nil
	case TypeArray:
		out := &core.JSONArraySchema{Description: s.Description}
		if s.Items != nil {
			items, err := FromGeminiSchema(s.Items)
			if err != nil {
				return nil, fmt.Errorf("items: %w", err)
			}
			out.Items = items
		}
		return out, nil
	case TypeObject:
		out := core.NewObjectSchema(s.Description)
		for _, name := range orderedPropertyNames(s) {
			el, err := FromGeminiSchema(s.Properties[name])
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			out.AddProperty(name, el)
		}
		if s.Required != nil {
			out.Required = append([]string{}, s.Required...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: gemini type %q", moderr.ErrUnsupportedSchema, s.Type)
}

func orderedPropertyNames(s *Schema) []string {
	names := make([]string, 0, len(s.Properties))
	seen := make(map[string]bool, len(s.Properties))
	for _, name := range s.PropertyOrdering {
		if _, ok := s.Properties[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range s.Properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// ResponseMimeType picks the responseMimeType for a response format.
func ResponseMimeType(format *core.ResponseFormat) string {
	if format == nil || format.Type == core.ResponseFormatText {
		return "text/plain"
	}
	if format.Schema != nil {
		if _, ok := format.Schema.Root.(*core.JSONEnumSchema); ok {
			return "text/x.enum"
		}
	}
	return "application/json"
}
