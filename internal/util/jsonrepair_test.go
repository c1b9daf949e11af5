package util

import (
	"testing"

	"github.com/lizzyg/llmbridge/internal/core"
)

func TestRepairJSON(t *testing.T) {
	object := core.NewObjectSchema("").AddProperty("a", &core.JSONIntegerSchema{})
	array := &core.JSONArraySchema{Items: &core.JSONIntegerSchema{}}
	enum := &core.JSONEnumSchema{Values: []string{"positive", "negative"}}
	nullableEnum := &core.JSONAnyOfSchema{AnyOf: []core.JSONSchemaElement{enum, &core.JSONNullSchema{}}}

	cases := []struct {
		name        string
		in          string
		root        core.JSONSchemaElement
		want        string
		wantChanged bool
	}{
		{"valid object untouched", `{"a":1}`, object, `{"a":1}`, false},
		{"fenced with tag", "```json\n{\"a\":1}\n```", object, `{"a":1}`, true},
		{"fence inside prose", "Sure:\n```JSON\n{\"a\":1}\n```\nAnything else?", object, `{"a":1}`, true},
		{"braces in trailing prose", `{"a":1} (see {note})`, object, `{"a":1}`, true},
		{"braces in leading prose", `I think {roughly}: {"a":1}`, object, `{"a":1}`, true},
		{"array root skips objects in prose", `Result {ok}: [1,2,3] done`, array, `[1,2,3]`, true},
		{"trailing commas", `{"a":[1,2,],}`, object, `{"a":[1,2]}`, true},
		{"comma inside string kept", `{"a":"x,}"}`, nil, `{"a":"x,}"}`, false},
		{"bare enum answer", "Positive.", enum, `"positive"`, true},
		{"quoted enum answer", `"negative"`, enum, `"negative"`, false},
		{"nullable enum", "`negative`", nullableEnum, `"negative"`, true},
		{"bare string answer", "hello there", &core.JSONStringSchema{}, `"hello there"`, true},
		{"unknown root prefers first value", "prefix [1,2] {\"a\":1}", nil, `[1,2]`, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, changed := RepairJSON(c.in, c.root)
			if got != c.want || changed != c.wantChanged {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, changed, c.want, c.wantChanged)
			}
		})
	}
}
