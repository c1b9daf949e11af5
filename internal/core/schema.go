package core

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// JSONSchemaElement is a node of the provider-neutral JSON schema model.
// Implementations are the JSON*Schema pointer types in this package.
type JSONSchemaElement interface {
	jsonSchemaElement()
}

// JSONObjectSchema keeps properties in insertion order.
type JSONObjectSchema struct {
	Description          string
	Properties           *orderedmap.OrderedMap[string, JSONSchemaElement]
	Required             []string
	AdditionalProperties *bool
	Definitions          map[string]JSONSchemaElement
}

type JSONArraySchema struct {
	Description string
	Items       JSONSchemaElement
}

type JSONStringSchema struct {
	Description string
	Format      string
}

type JSONIntegerSchema struct {
	Description string
}

type JSONNumberSchema struct {
	Description string
}

type JSONBooleanSchema struct {
	Description string
}

type JSONEnumSchema struct {
	Description string
	Values      []string
}

type JSONAnyOfSchema struct {
	Description string
	AnyOf       []JSONSchemaElement
}

type JSONNullSchema struct{}

// JSONReferenceSchema points into the definitions of the enclosing root
// object, e.g. "#/$defs/Address".
type JSONReferenceSchema struct {
	Reference string
}

// JSONRawSchema holds a JSON Schema document as text.
type JSONRawSchema struct {
	Schema string
}

func (*JSONObjectSchema) jsonSchemaElement()    {}
func (*JSONArraySchema) jsonSchemaElement()     {}
func (*JSONStringSchema) jsonSchemaElement()    {}
func (*JSONIntegerSchema) jsonSchemaElement()   {}
func (*JSONNumberSchema) jsonSchemaElement()    {}
func (*JSONBooleanSchema) jsonSchemaElement()   {}
func (*JSONEnumSchema) jsonSchemaElement()      {}
func (*JSONAnyOfSchema) jsonSchemaElement()     {}
func (*JSONNullSchema) jsonSchemaElement()      {}
func (*JSONReferenceSchema) jsonSchemaElement() {}
func (*JSONRawSchema) jsonSchemaElement()       {}

// NewObjectSchema returns an empty object schema ready for AddProperty.
func NewObjectSchema(description string) *JSONObjectSchema {
	return &JSONObjectSchema{
		Description: description,
		Properties:  orderedmap.New[string, JSONSchemaElement](),
	}
}

func (o *JSONObjectSchema) AddProperty(name string, el JSONSchemaElement) *JSONObjectSchema {
	if o.Properties == nil {
		o.Properties = orderedmap.New[string, JSONSchemaElement]()
	}
	o.Properties.Set(name, el)
	return o
}

func (o *JSONObjectSchema) AddStringProperty(name, description string) *JSONObjectSchema {
	return o.AddProperty(name, &JSONStringSchema{Description: description})
}

func (o *JSONObjectSchema) AddIntegerProperty(name, description string) *JSONObjectSchema {
	return o.AddProperty(name, &JSONIntegerSchema{Description: description})
}

func (o *JSONObjectSchema) AddNumberProperty(name, description string) *JSONObjectSchema {
	return o.AddProperty(name, &JSONNumberSchema{Description: description})
}

func (o *JSONObjectSchema) AddBooleanProperty(name, description string) *JSONObjectSchema {
	return o.AddProperty(name, &JSONBooleanSchema{Description: description})
}

func (o *JSONObjectSchema) AddEnumProperty(name, description string, values ...string) *JSONObjectSchema {
	return o.AddProperty(name, &JSONEnumSchema{Description: description, Values: values})
}

// WithRequired appends names to the required list.
func (o *JSONObjectSchema) WithRequired(names ...string) *JSONObjectSchema {
	o.Required = append(o.Required, names...)
	return o
}

// PropertyNames returns property names in insertion order.
func (o *JSONObjectSchema) PropertyNames() []string {
	if o == nil || o.Properties == nil {
		return nil
	}
	names := make([]string, 0, o.Properties.Len())
	for pair := o.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (o *JSONObjectSchema) Property(name string) (JSONSchemaElement, bool) {
	if o == nil || o.Properties == nil {
		return nil, false
	}
	return o.Properties.Get(name)
}

// JSONSchema is a named root schema used for structured responses.
type JSONSchema struct {
	Name string
	Root JSONSchemaElement
}

// ToolSpecification describes a function the model may call.
// Parameters is nil for functions without arguments.
type ToolSpecification struct {
	Name        string
	Description string
	Parameters  *JSONObjectSchema
}
