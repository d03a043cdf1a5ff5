package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchToolParams() ToolParameters {
	return ToolParameters{
		Type: "object",
		Properties: map[string]any{
			"query": map[string]any{"type": "string"},
			"top_k": map[string]any{"type": "integer", "minimum": 1},
		},
		Required: []string{"query"},
	}
}

func TestToolRegistryRegisterAndInvoke(t *testing.T) {
	reg := NewToolRegistry()

	var gotArgs map[string]any
	err := reg.Register(&Tool{
		Name:        "retrieve",
		Description: "search the books",
		Parameters:  searchToolParams(),
		Execute: func(_ context.Context, args map[string]any) (ToolResult, error) {
			gotArgs = args
			return ToolResult{Passages: []Passage{{Text: "whales are mammals", Score: 0.9}}}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	result, err := reg.Invoke(context.Background(), "retrieve", map[string]any{"query": "whales"})
	require.NoError(t, err)
	require.Len(t, result.Passages, 1)
	assert.Equal(t, "whales are mammals", result.Passages[0].Text)
	assert.Equal(t, "whales", gotArgs["query"])
}

func TestToolRegistryUnknownTool(t *testing.T) {
	reg := NewToolRegistry()

	_, err := reg.Invoke(context.Background(), "nonexistent", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "nonexistent")

	err = reg.ValidateArgs("nonexistent", map[string]any{})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolRegistryRejectsIncompleteTools(t *testing.T) {
	reg := NewToolRegistry()

	err := reg.Register(&Tool{Name: "", Execute: func(context.Context, map[string]any) (ToolResult, error) {
		return ToolResult{}, nil
	}})
	assert.Error(t, err)

	err = reg.Register(&Tool{Name: "no-exec"})
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestToolRegistryLastRegistrationWins(t *testing.T) {
	reg := NewToolRegistry()

	register := func(marker string) {
		err := reg.Register(&Tool{
			Name:       "retrieve",
			Parameters: searchToolParams(),
			Execute: func(context.Context, map[string]any) (ToolResult, error) {
				return ToolResult{Passages: []Passage{{Text: marker}}}, nil
			},
		})
		require.NoError(t, err)
	}

	register("first")
	register("second")

	assert.Equal(t, 1, reg.Len())
	result, err := reg.Invoke(context.Background(), "retrieve", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", result.Passages[0].Text)
}

func TestToolRegistryValidateArgs(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(&Tool{
		Name:       "retrieve",
		Parameters: searchToolParams(),
		Execute: func(context.Context, map[string]any) (ToolResult, error) {
			return ToolResult{}, nil
		},
	}))

	// Valid arguments as they arrive from json.Unmarshal: numbers are float64.
	err := reg.ValidateArgs("retrieve", map[string]any{"query": "moby dick", "top_k": float64(3)})
	assert.NoError(t, err)

	// Missing required "query".
	err = reg.ValidateArgs("retrieve", map[string]any{"top_k": float64(3)})
	assert.Error(t, err)

	// Wrong type for "query".
	err = reg.ValidateArgs("retrieve", map[string]any{"query": float64(42)})
	assert.Error(t, err)
}

func TestToolRegistryDescriptorsKeepRegistrationOrder(t *testing.T) {
	reg := NewToolRegistry()
	noop := func(context.Context, map[string]any) (ToolResult, error) { return ToolResult{}, nil }

	for _, name := range []string{"retrieve", "summarize", "lookup"} {
		require.NoError(t, reg.Register(&Tool{Name: name, Parameters: searchToolParams(), Execute: noop}))
	}
	// Re-registering must not duplicate the catalog entry.
	require.NoError(t, reg.Register(&Tool{Name: "retrieve", Parameters: searchToolParams(), Execute: noop}))

	descriptors := reg.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, "retrieve", descriptors[0].Name)
	assert.Equal(t, "summarize", descriptors[1].Name)
	assert.Equal(t, "lookup", descriptors[2].Name)
}
