package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	moderr "github.com/lizzyg/llmbridge/errors"
)

// rawSchema is the wire form of a standard JSON Schema document.
type rawSchema struct {
	Ref                  string                                     `json:"$ref,omitempty"`
	Type                 any                                        `json:"type,omitempty"`
	Description          string                                     `json:"description,omitempty"`
	Format               string                                     `json:"format,omitempty"`
	Enum                 []any                                      `json:"enum,omitempty"`
	Properties           *orderedmap.OrderedMap[string, *rawSchema] `json:"properties,omitempty"`
	Required             []string                                   `json:"required,omitempty"`
	AdditionalProperties any                                        `json:"additionalProperties,omitempty"`
	Items                *rawSchema                                 `json:"items,omitempty"`
	AnyOf                []*rawSchema                               `json:"anyOf,omitempty"`
	OneOf                []*rawSchema                               `json:"oneOf,omitempty"`
	Nullable             bool                                       `json:"nullable,omitempty"`
	Defs                 map[string]*rawSchema                      `json:"$defs,omitempty"`
	Definitions          map[string]*rawSchema                      `json:"definitions,omitempty"`
}

// UnmarshalJSON accepts the boolean schemas true and false as empty schemas.
func (r *rawSchema) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		*r = rawSchema{}
		return nil
	}
	type alias rawSchema
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*r = rawSchema(a)
	return nil
}

// ParseJSONSchema converts a standard JSON Schema document into the element
// tree. A root "$ref" is resolved against the document's definitions; nested
// references are kept as JSONReferenceSchema and the definitions are attached
// to the root object.
func ParseJSONSchema(raw []byte) (JSONSchemaElement, error) {
	var doc rawSchema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", moderr.ErrUnsupportedSchema, err)
	}
	defs := map[string]*rawSchema{}
	for k, v := range doc.Definitions {
		defs["#/definitions/"+k] = v
	}
	for k, v := range doc.Defs {
		defs["#/$defs/"+k] = v
	}

	top := &doc
	if doc.Ref != "" {
		target, ok := defs[doc.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: unresolved reference %q", moderr.ErrUnsupportedSchema, doc.Ref)
		}
		top = target
	}
	root, err := fromRaw(top)
	if err != nil {
		return nil, err
	}
	if obj, ok := root.(*JSONObjectSchema); ok && len(defs) > 0 {
		obj.Definitions = make(map[string]JSONSchemaElement, len(defs))
		for ref, def := range defs {
			if def == top {
				continue
			}
			el, err := fromRaw(def)
			if err != nil {
				return nil, err
			}
			obj.Definitions[ref] = el
		}
		if len(obj.Definitions) == 0 {
			obj.Definitions = nil
		}
	}
	return root, nil
}

func fromRaw(r *rawSchema) (JSONSchemaElement, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty schema", moderr.ErrUnsupportedSchema)
	}
	if r.Ref != "" {
		return &JSONReferenceSchema{Reference: r.Ref}, nil
	}
	if alts := append(append([]*rawSchema{}, r.AnyOf...), r.OneOf...); len(alts) > 0 {
		out := &JSONAnyOfSchema{Description: r.Description}
		for _, alt := range alts {
			el, err := fromRaw(alt)
			if err != nil {
				return nil, err
			}
			out.AnyOf = append(out.AnyOf, el)
		}
		return out, nil
	}

	types, err := schemaTypes(r.Type)
	if err != nil {
		return nil, err
	}
	nullable := r.Nullable
	var nonNull []string
	for _, t := range types {
		if t == "null" {
			nullable = true
			continue
		}
		nonNull = append(nonNull, t)
	}
	if len(types) == 1 && types[0] == "null" {
		return &JSONNullSchema{}, nil
	}

	var el JSONSchemaElement
	switch {
	case len(r.Enum) > 0:
		values := make([]string, 0, len(r.Enum))
		for _, v := range r.Enum {
			if v == nil {
				nullable = true
				continue
			}
			values = append(values, fmt.Sprint(v))
		}
		el = &JSONEnumSchema{Description: r.Description, Values: values}
	case len(nonNull) > 1:
		alts := &JSONAnyOfSchema{Description: r.Description}
		for _, t := range nonNull {
			single := *r
			single.Type = t
			single.Description = ""
			single.Nullable = false
			sub, err := fromRaw(&single)
			if err != nil {
				return nil, err
			}
			alts.AnyOf = append(alts.AnyOf, sub)
		}
		if nullable {
			alts.AnyOf = append(alts.AnyOf, &JSONNullSchema{})
		}
		return alts, nil
	case len(nonNull) == 1:
		el, err = typedFromRaw(nonNull[0], r)
	case r.Properties != nil:
		el, err = typedFromRaw("object", r)
	case r.Items != nil:
		el, err = typedFromRaw("array", r)
	default:
		// untyped schemas such as true or {} accept any value
		el = NewObjectSchema(r.Description)
	}
	if err != nil {
		return nil, err
	}
	if nullable {
		return &JSONAnyOfSchema{AnyOf: []JSONSchemaElement{el, &JSONNullSchema{}}}, nil
	}
	return el, nil
}

func typedFromRaw(t string, r *rawSchema) (JSONSchemaElement, error) {
	switch t {
	case "string":
		return &JSONStringSchema{Description: r.Description, Format: r.Format}, nil
	case "integer":
		return &JSONIntegerSchema{Description: r.Description}, nil
	case "number":
		return &JSONNumberSchema{Description: r.Description}, nil
	case "boolean":
		return &JSONBooleanSchema{Description: r.Description}, nil
	case "array":
		arr := &JSONArraySchema{Description: r.Description}
		if r.Items != nil {
			items, err := fromRaw(r.Items)
			if err != nil {
				return nil, err
			}
			arr.Items = items
		}
		return arr, nil
	case "object":
		obj := NewObjectSchema(r.Description)
		if r.Properties != nil {
			for pair := r.Properties.Oldest(); pair != nil; pair = pair.Next() {
				el, err := fromRaw(pair.Value)
				if err != nil {
					return nil, fmt.Errorf("property %q: %w", pair.Key, err)
				}
				obj.AddProperty(pair.Key, el)
			}
		}
		obj.Required = r.Required
		if b, ok := r.AdditionalProperties.(bool); ok {
			obj.AdditionalProperties = &b
		}
		return obj, nil
	}
	return nil, fmt.Errorf("%w: type %q", moderr.ErrUnsupportedSchema, t)
}

func schemaTypes(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: type entry %v", moderr.ErrUnsupportedSchema, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: type %v", moderr.ErrUnsupportedSchema, v)
}

// MarshalJSONSchema renders the element tree as a standard JSON Schema document.
func MarshalJSONSchema(el JSONSchemaElement) ([]byte, error) {
	r, err := toRaw(el)
	if err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func toRaw(el JSONSchemaElement) (*rawSchema, error) {
	switch s := el.(type) {
	case *JSONObjectSchema:
		r := &rawSchema{Type: "object", Description: s.Description, Required: s.Required}
		if s.Properties != nil && s.Properties.Len() > 0 {
			r.Properties = orderedmap.New[string, *rawSchema]()
			for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
				sub, err := toRaw(pair.Value)
				if err != nil {
					return nil, err
				}
				r.Properties.Set(pair.Key, sub)
			}
		}
		if s.AdditionalProperties != nil {
			r.AdditionalProperties = *s.AdditionalProperties
		}
		for ref, def := range s.Definitions {
			sub, err := toRaw(def)
			if err != nil {
				return nil, err
			}
			name, isDefs := strings.CutPrefix(ref, "#/$defs/")
			if isDefs {
				if r.Defs == nil {
					r.Defs = map[string]*rawSchema{}
				}
				r.Defs[name] = sub
				continue
			}
			if r.Definitions == nil {
				r.Definitions = map[string]*rawSchema{}
			}
			r.Definitions[strings.TrimPrefix(ref, "#/definitions/")] = sub
		}
		return r, nil
	case *JSONArraySchema:
		r := &rawSchema{Type: "array", Description: s.Description}
		if s.Items != nil {
			items, err := toRaw(s.Items)
			if err != nil {
				return nil, err
			}
			r.Items = items
		}
		return r, nil
	case *JSONStringSchema:
		return &rawSchema{Type: "string", Description: s.Description, Format: s.Format}, nil
	case *JSONIntegerSchema:
		return &rawSchema{Type: "integer", Description: s.Description}, nil
	case *JSONNumberSchema:
		return &rawSchema{Type: "number", Description: s.Description}, nil
	case *JSONBooleanSchema:
		return &rawSchema{Type: "boolean", Description: s.Description}, nil
	case *JSONEnumSchema:
		r := &rawSchema{Type: "string", Description: s.Description}
		for _, v := range s.Values {
			r.Enum = append(r.Enum, v)
		}
		return r, nil
	case *JSONAnyOfSchema:
		r := &rawSchema{Description: s.Description}
		for _, alt := range s.AnyOf {
			sub, err := toRaw(alt)
			if err != nil {
				return nil, err
			}
			r.AnyOf = append(r.AnyOf, sub)
		}
		return r, nil
	case *JSONNullSchema:
		return &rawSchema{Type: "null"}, nil
	case *JSONReferenceSchema:
		return &rawSchema{Ref: s.Reference}, nil
	case *JSONRawSchema:
		parsed, err := ParseJSONSchema([]byte(s.Schema))
		if err != nil {
			return nil, err
		}
		return toRaw(parsed)
	}
	return nil, fmt.Errorf("%w: %T", moderr.ErrUnsupportedSchema, el)
}
