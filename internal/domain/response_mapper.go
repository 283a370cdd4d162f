package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// DefaultResponseMapper is the default implementation of ResponseMapper.
// Results are wrapped in a named envelope and rendered both as indented
// JSON text and as structured content.
type DefaultResponseMapper struct{}

// NewResponseMapper creates a new instance of DefaultResponseMapper.
func NewResponseMapper() ResponseMapper {
	return &DefaultResponseMapper{}
}

// TicketList is the envelope for ticket collections.
type TicketList struct {
	Tickets []Ticket `json:"tickets"`
	Count   int      `json:"count"`
}

// envelope wraps a domain record under a stable top-level key.
func envelope(result interface{}) interface{} {
	switch v := result.(type) {
	case []Ticket:
		if v == nil {
			v = []Ticket{}
		}
		return TicketList{Tickets: normalizeTickets(v), Count: len(v)}
	case *Ticket:
		return map[string]interface{}{"ticket": normalizeTicket(*v)}
	case Ticket:
		return map[string]interface{}{"ticket": normalizeTicket(v)}
	case *User:
		return map[string]interface{}{"user": v}
	case *Workspace:
		w := *v
		if w.Teams == nil {
			w.Teams = []Team{}
		}
		return map[string]interface{}{"workspace": w}
	case []Team:
		if v == nil {
			v = []Team{}
		}
		return map[string]interface{}{"teams": v, "count": len(v)}
	default:
		return result
	}
}

func normalizeTickets(tickets []Ticket) []Ticket {
	out := make([]Ticket, len(tickets))
	for i, t := range tickets {
		out[i] = normalizeTicket(t)
	}
	return out
}

// normalizeTicket guarantees UTC timestamps and a non-null label list.
func normalizeTicket(t Ticket) Ticket {
	if t.Labels == nil {
		t.Labels = []Label{}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t
}

// MapToToolResponse converts a result to MCP format.
func (m *DefaultResponseMapper) MapToToolResponse(result interface{}) (*ToolResponse, error) {
	if result == nil {
		return &ToolResponse{
			Content: []ContentBlock{
				{
					Type: "text",
					Text: "{}",
				},
			},
		}, nil
	}

	payload := envelope(result)
	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &ToolResponse{
		Content: []ContentBlock{
			{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
		StructuredContent: payload,
	}, nil
}

// MapToResource renders a result as JSON resource contents.
func (m *DefaultResponseMapper) MapToResource(uri string, result interface{}) (*Resource, error) {
	jsonBytes, err := json.MarshalIndent(envelope(result), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource %s: %w", uri, err)
	}
	return &Resource{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(jsonBytes),
	}, nil
}

// MapError converts any error to a protocol error object.
// Tracker errors map by kind; errors that are already protocol errors pass
// through; everything else is an internal error.
func (m *DefaultResponseMapper) MapError(err error) *Error {
	if err == nil {
		return nil
	}

	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var te *TrackerError
	if errors.As(err, &te) {
		return mapTrackerError(te)
	}

	return &Error{
		Code:    InternalError,
		Message: err.Error(),
		Data: map[string]interface{}{
			"kind":      "internal_error",
			"retryable": false,
		},
	}
}

// MapErrorResponse wraps a protocol error in an error tool response.
func (m *DefaultResponseMapper) MapErrorResponse(rpcErr *Error) *ToolResponse {
	return &ToolResponse{
		Content: []ContentBlock{
			{
				Type: "text",
				Text: rpcErr.Message,
			},
		},
		StructuredContent: map[string]interface{}{"error": rpcErr},
		IsError:           true,
	}
}

// CodeForKind returns the JSON-RPC code a tracker error kind is rendered with.
func CodeForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return InvalidParams
	case KindAuth:
		return AuthenticationError
	case KindNotFound:
		return NotFoundError
	case KindRateLimit:
		return RateLimitError
	case KindUnavailable:
		return NetworkError
	case KindIncomplete:
		return IncompleteResultError
	default:
		return InternalError
	}
}

func mapTrackerError(te *TrackerError) *Error {
	data := map[string]interface{}{
		"kind":      string(te.Kind),
		"retryable": te.Retryable(),
	}
	if te.Provider != "" {
		data["provider"] = te.Provider
	}
	if te.BackendCode != "" {
		data["backendCode"] = te.BackendCode
	}
	if te.RetryAfter > 0 {
		data["retryAfterSeconds"] = int(math.Ceil(te.RetryAfter.Seconds()))
	}

	return &Error{
		Code:    CodeForKind(te.Kind),
		Message: te.Error(),
		Data:    data,
	}
}
