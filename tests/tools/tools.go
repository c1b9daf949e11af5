package tools

import (
	"encoding/json"
	"fmt"

	llm "github.com/lizzyg/llmbridge"
)

type GetUserLocationArgs struct{}

type GetWeatherArgs struct {
	Location string `json:"location" description:"city and state"`
}

// LocationWeatherTools returns both tool specifications in call order.
func LocationWeatherTools() []llm.ToolSpecification {
	return []llm.ToolSpecification{
		{
			Name:        "GetUserLocation",
			Description: "Returns the user's current city and state",
			Parameters:  llm.ToolParameters(&GetUserLocationArgs{}),
		},
		{
			Name:        "GetWeatherInLocation",
			Description: "Returns current weather for a location",
			Parameters:  llm.ToolParameters(&GetWeatherArgs{}),
		},
	}
}

// Execute runs a tool call against the canned implementations.
func Execute(call llm.ToolExecutionRequest) (string, error) {
	var out any
	switch call.Name {
	case "GetUserLocation":
		out = map[string]any{"location": "Portland, Oregon"}
	case "GetWeatherInLocation":
		var a GetWeatherArgs
		if err := json.Unmarshal(call.Arguments, &a); err != nil {
			return "", fmt.Errorf("GetWeatherInLocation arguments: %w", err)
		}
		out = map[string]any{"weather": "Sunny and mild in " + a.Location}
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	b, err := json.Marshal(out)
	return string(b), err
}
