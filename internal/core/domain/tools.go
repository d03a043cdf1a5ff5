package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Tool represents an executable capability available to the planner
type Tool struct {
	Name        string
	Description string
	Parameters  ToolParameters
	Execute     ToolExecutor
}

// ToolParameters defines the JSON schema for tool inputs. It is the contract
// surface the planning model reasons over, so it must describe the accepted
// arguments faithfully.
type ToolParameters struct {
	Type       string         `json:"type"`       // "object"
	Properties map[string]any `json:"properties"` // param definitions
	Required   []string       `json:"required"`   // required param names
}

// ToolExecutor is the function signature for tool execution.
// Arguments come from a JSON-decoded model decision; handlers are expected
// to tolerate missing or malformed values.
type ToolExecutor func(ctx context.Context, args map[string]any) (ToolResult, error)

// ToolResult is what a tool hands back to the orchestration loop.
type ToolResult struct {
	Passages []Passage `json:"passages"`
}

// ToolDescriptor is the registry view exposed to the planner: everything
// about a tool except its handler.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

type registeredTool struct {
	tool   *Tool
	schema *openapi3.Schema // compiled at registration for argument validation
}

// ToolRegistry manages available tools. Registration happens at process
// bootstrap only, so re-registering a name silently overwrites (last write
// wins). The registry is read-only afterwards and safe for concurrent use.
type ToolRegistry struct {
	tools map[string]registeredTool
	order []string // registration order, for stable descriptor listing
}

// NewToolRegistry creates a new empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]registeredTool),
	}
}

// Register adds a tool to the registry, compiling its parameter schema.
func (r *ToolRegistry) Register(tool *Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s has no executor", tool.Name)
	}

	raw, err := json.Marshal(tool.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters for %s: %w", tool.Name, err)
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(raw); err != nil {
		return fmt.Errorf("compile parameter schema for %s: %w", tool.Name, err)
	}

	if _, exists := r.tools[tool.Name]; !exists {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = registeredTool{tool: tool, schema: schema}
	return nil
}

// Invoke dispatches to the named tool's handler. A handler error propagates
// to the caller unchanged; it is never swallowed here.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	entry, ok := r.tools[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return entry.tool.Execute(ctx, args)
}

// ValidateArgs checks JSON-decoded arguments against the tool's parameter
// schema. Values must come from json.Unmarshal (numbers as float64).
func (r *ToolRegistry) ValidateArgs(name string, args map[string]any) error {
	entry, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return entry.schema.VisitJSON(map[string]any(args))
}

// Descriptors returns the tool catalog in registration order for consumption
// by the planning prompt.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, name := range r.order {
		entry, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, ToolDescriptor{
			Name:        entry.tool.Name,
			Description: entry.tool.Description,
			Parameters:  entry.tool.Parameters,
		})
	}
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	return len(r.tools)
}
