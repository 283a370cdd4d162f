package domain

// ResponseMapper converts application results to MCP tool responses.
// It is the single place where domain records and tracker errors are
// recast into the protocol shape.
type ResponseMapper interface {
	// MapToToolResponse converts a result to MCP format.
	// Returns an error if the value cannot be serialized.
	MapToToolResponse(result interface{}) (*ToolResponse, error)

	// MapToResource renders a result as JSON resource contents for uri.
	MapToResource(uri string, result interface{}) (*Resource, error)

	// MapError converts any error to a protocol error object.
	MapError(err error) *Error

	// MapErrorResponse wraps a protocol error in an error tool response.
	MapErrorResponse(rpcErr *Error) *ToolResponse
}
