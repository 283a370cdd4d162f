package domain

import (
	"context"
)

// ToolCall is a validated tool invocation ready to run. The result is a
// domain record that the ResponseMapper knows how to render.
type ToolCall func(ctx context.Context) (interface{}, error)

// ToolHandler binds tool calls for one group of tools.
type ToolHandler interface {
	// Bind validates the arguments of req against the tool's schema and
	// returns the call to dispatch. It performs no I/O.
	Bind(req *ToolRequest) (ToolCall, error)

	// ListTools returns available tools for this handler.
	ListTools() []ToolDefinition

	// ToolName returns the identifier for this handler.
	ToolName() string
}

// ResourceHandler serves read-only resources.
type ResourceHandler interface {
	// ListResources returns the resources this handler can read.
	ListResources() []ResourceDefinition

	// ReadResource returns the domain record behind uri.
	ReadResource(ctx context.Context, uri string) (interface{}, error)
}
