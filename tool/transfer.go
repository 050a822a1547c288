package tool

import "fmt"

// TransferToolName is the reserved name of the built-in handoff tool. Its
// handler is wired by the conversation package, which owns the canonical log
// and agent registry the transfer protocol operates on.
const TransferToolName = "transfer_to_agent"

// TransferArgs are the decoded arguments of the transfer tool.
type TransferArgs struct {
	Agent   string
	Task    string
	Indices []int
}

// TransferParameters returns the schema of the transfer tool.
func TransferParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{
				"type":        "string",
				"description": "Target agent name",
			},
			"task": map[string]any{
				"type":        "string",
				"description": "What the target agent should do next",
			},
			"relevant_message_indices": map[string]any{
				"type":        "array",
				"description": "Canonical log indices of messages the target agent needs as context",
			},
		},
		"required": []string{"agent", "task"},
	}
}

// ParseTransferArgs decodes a raw argument map. Indices arrive as float64
// after JSON decoding and are rejected when fractional or negative.
func ParseTransferArgs(args map[string]any) (TransferArgs, error) {
	var parsed TransferArgs

	raw, ok := args["agent"]
	if !ok {
		return parsed, fmt.Errorf("missing required field 'agent'")
	}
	agent, ok := raw.(string)
	if !ok || agent == "" {
		return parsed, fmt.Errorf("field 'agent' must be a non-empty string")
	}
	parsed.Agent = agent

	if task, ok := args["task"].(string); ok {
		parsed.Task = task
	}

	rawIndices, ok := args["relevant_message_indices"]
	if !ok || rawIndices == nil {
		return parsed, nil
	}
	list, ok := rawIndices.([]any)
	if !ok {
		return parsed, fmt.Errorf("field 'relevant_message_indices' must be an array of integers")
	}
	for _, item := range list {
		f, ok := item.(float64)
		if !ok || f != float64(int(f)) || f < 0 {
			return parsed, fmt.Errorf("field 'relevant_message_indices' must contain non-negative integers, got %v", item)
		}
		parsed.Indices = append(parsed.Indices, int(f))
	}
	return parsed, nil
}
