package gemini

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lizzyg/llmbridge/internal/core"
)

// BuiltinTools toggles the server-side tools Gemini can run itself.
type BuiltinTools struct {
	CodeExecution bool
	GoogleSearch  bool
	URLContext    bool
	GoogleMaps    bool
}

func (b BuiltinTools) any() bool {
	return b.CodeExecution || b.GoogleSearch || b.URLContext || b.GoogleMaps
}

// ToGeminiTools maps tool specifications to a single Gemini tool carrying all
// function declarations plus the enabled built-in tools. It returns nil when
// there is nothing to declare.
func ToGeminiTools(specs []core.ToolSpecification, builtin BuiltinTools) ([]Tool, error) {
	if len(specs) == 0 && !builtin.any() {
		return nil, nil
	}
	var tool Tool
	for _, spec := range specs {
		decl := FunctionDeclaration{Name: spec.Name, Description: spec.Description}
		if spec.Parameters != nil && spec.Parameters.Properties != nil && spec.Parameters.Properties.Len() > 0 {
			params, err := ToGeminiSchema(spec.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %q: %w", spec.Name, err)
			}
			decl.Parameters = params
		}
		tool.FunctionDeclarations = append(tool.FunctionDeclarations, decl)
	}
	if builtin.CodeExecution {
		tool.CodeExecution = &CodeExecution{}
	}
	if builtin.GoogleSearch {
		tool.GoogleSearch = &GoogleSearch{}
	}
	if builtin.URLContext {
		tool.URLContext = &URLContext{}
	}
	if builtin.GoogleMaps {
		tool.GoogleMaps = &GoogleMaps{}
	}
	return []Tool{tool}, nil
}

// FromGeminiTools maps function declarations back to tool specifications.
func FromGeminiTools(tools []Tool) ([]core.ToolSpecification, error) {
	var specs []core.ToolSpecification
	for _, t := range tools {
		for _, decl := range t.FunctionDeclarations {
			spec := core.ToolSpecification{Name: decl.Name, Description: decl.Description}
			if decl.Parameters != nil {
				el, err := FromGeminiSchema(decl.Parameters)
				if err != nil {
					return nil, fmt.Errorf("tool %q: %w", decl.Name, err)
				}
				obj, ok := el.(*core.JSONObjectSchema)
				if !ok {
					return nil, fmt.Errorf("tool %q: parameters must be an object, got %T", decl.Name, el)
				}
				spec.Parameters = obj
			}
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

// ToToolConfig maps the tool choice to a function calling config. An empty
// choice without allowed names leaves the server default in place.
func ToToolConfig(choice core.ToolChoice, allowed []string) *ToolConfig {
	mode := ""
	switch choice {
	case core.ToolChoiceAuto:
		mode = ModeAuto
	case core.ToolChoiceRequired:
		mode = ModeAny
	case core.ToolChoiceNone:
		mode = ModeNone
	}
	if mode == "" && len(allowed) == 0 {
		return nil
	}
	if mode == "" {
		mode = ModeAny
	}
	return &ToolConfig{FunctionCallingConfig: &FunctionCallingConfig{
		Mode:                 mode,
		AllowedFunctionNames: allowed,
	}}
}

// FromFunctionCalls converts Gemini function calls to tool execution
// requests. Calls without an ID get a generated one.
func FromFunctionCalls(calls []*FunctionCall) ([]core.ToolExecutionRequest, error) {
	out := make([]core.ToolExecutionRequest, 0, len(calls))
	for _, fc := range calls {
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("function call %q args: %w", fc.Name, err)
		}
		id := fc.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, core.ToolExecutionRequest{ID: id, Name: fc.Name, Arguments: b})
	}
	return out, nil
}

// ToFunctionCall converts a tool execution request back to a Gemini function call.
func ToFunctionCall(req core.ToolExecutionRequest) (*FunctionCall, error) {
	args := map[string]any{}
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, fmt.Errorf("tool call %q arguments: %w", req.Name, err)
		}
	}
	return &FunctionCall{ID: req.ID, Name: req.Name, Args: args}, nil
}
