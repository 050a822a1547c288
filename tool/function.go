package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/codec"
	"github.com/hupe1980/agentrelay/internal/util"
)

// NewFunction exposes a plain Go function as a tool registration. Arguments
// are validated against the declared schema before the function runs;
// validation and execution failures surface as *ToolError with consistent
// codes so the conversation loop can relay them uniformly.
//
// Example:
//
//	sum := tool.NewFunction(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(_ context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunction(name, description string, parameters map[string]any, fn Handler) Registration {
	def := backend.ToolDefinition{Name: name, Description: description, Parameters: parameters}
	return Registration{
		Name: name,
		DefinitionFactory: func(backendID string) (any, error) {
			return codec.ConvertToolDefinition(def, backendID)
		},
		HandlerFactory: func(_ any) Handler {
			return func(ctx context.Context, args map[string]any) (any, error) {
				if err := util.ValidateParameters(args, parameters); err != nil {
					return nil, &ToolError{
						Tool:    name,
						Message: fmt.Sprintf("parameter validation failed: %v", err),
						Code:    CodeValidationError,
					}
				}
				result, err := fn(ctx, args)
				if err != nil {
					if toolErr, ok := err.(*ToolError); ok {
						return nil, toolErr
					}
					return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeExecutionError}
				}
				return result, nil
			}
		},
	}
}

// NewFunctionFromStruct derives the parameter schema from a struct via
// reflection, equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum := tool.NewFunctionFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionFromStruct(name, description string, structType any, fn Handler) Registration {
	return NewFunction(name, description, util.CreateSchema(structType), fn)
}
