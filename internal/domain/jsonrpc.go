package domain

import (
	"fmt"
)

// Error represents a JSON-RPC 2.0 error object.
// It is the only error shape that leaves the dispatcher.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// JSON-RPC 2.0 error codes
const (
	// Standard JSON-RPC 2.0 error codes. Framing errors are reported by the
	// MCP runtime itself.
	MethodNotFound = -32601 // Unknown tool or resource
	InvalidParams  = -32602 // Invalid tool arguments
	InternalError  = -32603 // Server internal error

	// Application-specific error codes
	AuthenticationError   = -32002 // Credentials missing or rejected
	NetworkError          = -32004 // Backend unreachable or timed out
	RateLimitError        = -32005 // Rate limit exceeded
	NotFoundError         = -32006 // Ticket or entity does not exist
	IncompleteResultError = -32007 // Pagination cap reached
)
