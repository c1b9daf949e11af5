package util

import (
	"strings"
	"testing"

	"github.com/lizzyg/llmbridge/internal/core"
)

type sample struct {
	Name    string   `json:"name" jsonschema:"description=Full name"`
	Age     int      `json:"age"`
	Tags    []string `json:"tags,omitempty"`
	Address address  `json:"address"`
}

type address struct {
	City string `json:"city"`
}

func TestGenerateJSONSchema(t *testing.T) {
	schema := GenerateJSONSchema(&sample{})
	if len(schema) == 0 {
		t.Fatal("empty schema")
	}
	if !strings.Contains(schema, `"name"`) || !strings.Contains(schema, `"age"`) {
		t.Fatalf("schema missing fields: %s", schema)
	}
	if strings.Contains(schema, `"$ref"`) {
		t.Fatalf("schema should inline definitions: %s", schema)
	}
}

func TestSchemaFromType(t *testing.T) {
	el, err := SchemaFromType(&sample{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	obj, ok := el.(*core.JSONObjectSchema)
	if !ok {
		t.Fatalf("expected object, got %T", el)
	}
	names := obj.PropertyNames()
	if len(names) != 4 || names[0] != "name" || names[3] != "address" {
		t.Fatalf("unexpected properties: %v", names)
	}
	name, _ := obj.Property("name")
	if s := name.(*core.JSONStringSchema); s.Description != "Full name" {
		t.Fatalf("unexpected description: %q", s.Description)
	}
	addr, _ := obj.Property("address")
	if _, ok := addr.(*core.JSONObjectSchema); !ok {
		t.Fatalf("nested struct should be inlined: %#v", addr)
	}
	for _, r := range obj.Required {
		if r == "tags" {
			t.Fatalf("omitempty field should not be required")
		}
	}
}

func TestSchemaFromType_AnyField(t *testing.T) {
	type withAny struct {
		Name  string         `json:"name"`
		Extra any            `json:"extra"`
		Attrs map[string]any `json:"attrs"`
	}
	el, err := SchemaFromType(&withAny{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	obj := el.(*core.JSONObjectSchema)
	extra, ok := obj.Property("extra")
	if !ok {
		t.Fatal("missing extra property")
	}
	if _, ok := extra.(*core.JSONObjectSchema); !ok {
		t.Fatalf("any field should map to a free-form object, got %#v", extra)
	}
}

func TestIsStringType(t *testing.T) {
	if !IsStringType[string]() || IsStringType[int]() {
		t.Fatal("unexpected IsStringType result")
	}
}
