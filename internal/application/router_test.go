package application

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"tracker-mcp-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler is a ToolHandler that returns its own tool name.
type echoHandler struct {
	name  string
	tools []domain.ToolDefinition
}

func (h *echoHandler) Bind(req *domain.ToolRequest) (domain.ToolCall, error) {
	return func(ctx context.Context) (interface{}, error) {
		return map[string]string{"handled_by": h.name, "tool": req.Name}, nil
	}, nil
}

func (h *echoHandler) ListTools() []domain.ToolDefinition { return h.tools }

func (h *echoHandler) ToolName() string { return h.name }

func newTestRouter(t *testing.T, provider *fakeProvider) (*RequestRouter, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := NewTicketHandler(NewTicketService(provider))
	return NewRequestRouter(domain.NewResponseMapper(), logger, handler), &logs
}

// errorOf extracts the protocol error carried by an error response.
func errorOf(t *testing.T, resp *domain.ToolResponse) *domain.Error {
	t.Helper()
	require.True(t, resp.IsError, "expected an error response, got %+v", resp)
	payload, ok := resp.StructuredContent.(map[string]interface{})
	require.True(t, ok)
	rpcErr, ok := payload["error"].(*domain.Error)
	require.True(t, ok)
	return rpcErr
}

func TestNewRequestRouter(t *testing.T) {
	a := &echoHandler{name: "a", tools: []domain.ToolDefinition{{Name: "a_one"}, {Name: "a_two"}}}
	b := &echoHandler{name: "b", tools: []domain.ToolDefinition{{Name: "b_one"}}}
	router := NewRequestRouter(domain.NewResponseMapper(), nil, b, a)

	var names []string
	for _, tool := range router.ListAllTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"a_one", "a_two", "b_one"}, names)

	handler, ok := router.GetHandler("b_one")
	require.True(t, ok)
	assert.Equal(t, "b", handler.ToolName())

	_, ok = router.GetHandler("b")
	assert.False(t, ok, "handler names are not tool names")

	// Neither handler serves resources.
	assert.Empty(t, router.ListAllResources())
}

func TestRequestRouter_RouteSuccess(t *testing.T) {
	router, logs := newTestRouter(t, newFakeProvider())

	resp := router.Route(context.Background(), &domain.ToolRequest{
		Name:      ToolGetTicket,
		Arguments: map[string]interface{}{"id": "ISSUE-123"},
	})

	require.False(t, resp.IsError)
	require.Len(t, resp.Content, 1)
	var body struct {
		Ticket domain.Ticket `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &body))
	assert.Equal(t, "ISSUE-123", body.Ticket.ID)
	assert.Equal(t, domain.StatusInProgress, body.Ticket.Status)

	out := logs.String()
	for _, state := range []requestState{stateReceived, stateValidated, stateDispatched, stateCompleted} {
		assert.Contains(t, out, `"state":"`+string(state)+`"`)
	}
	assert.Contains(t, out, `"request_id"`)
	assert.NotContains(t, out, `"state":"failed"`)
}

func TestRequestRouter_UnknownTool(t *testing.T) {
	provider := newFakeProvider()
	router, _ := newTestRouter(t, provider)

	resp := router.Route(context.Background(), &domain.ToolRequest{Name: "jira_get_issue"})

	rpcErr := errorOf(t, resp)
	assert.Equal(t, domain.MethodNotFound, rpcErr.Code)
	assert.Equal(t, "unknown_tool", rpcErr.Data.(map[string]interface{})["kind"])
	assert.Contains(t, resp.Content[0].Text, "jira_get_issue")
}

func TestRequestRouter_ValidationNeverReachesProvider(t *testing.T) {
	tests := []struct {
		name string
		req  *domain.ToolRequest
	}{
		{"empty id", &domain.ToolRequest{Name: ToolGetTicket, Arguments: map[string]interface{}{"id": ""}}},
		{"missing query", &domain.ToolRequest{Name: ToolSearchTickets, Arguments: map[string]interface{}{}}},
		{"whitespace query", &domain.ToolRequest{Name: ToolSearchTickets, Arguments: map[string]interface{}{"query": " \t "}}},
		{"unknown argument", &domain.ToolRequest{Name: ToolGetAssignedTickets, Arguments: map[string]interface{}{"all": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			router, logs := newTestRouter(t, provider)

			rpcErr := errorOf(t, router.Route(context.Background(), tt.req))
			assert.Equal(t, domain.InvalidParams, rpcErr.Code)
			assert.Equal(t, "validation_error", rpcErr.Data.(map[string]interface{})["kind"])
			assert.Empty(t, provider.calls, "provider must not be called")
			assert.NotContains(t, logs.String(), `"state":"dispatched"`)
			assert.Contains(t, logs.String(), `"state":"failed"`)
		})
	}
}

func TestRequestRouter_BackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"auth", domain.NewAuthError("fake", "token rejected", nil), domain.AuthenticationError, "auth_error"},
		{"rate limit", domain.NewRateLimitError("fake", 0, nil), domain.RateLimitError, "rate_limited"},
		{"unavailable", domain.NewUnavailableError("fake", "", context.DeadlineExceeded), domain.NetworkError, "unavailable"},
		{"incomplete", domain.NewIncompleteResultError("fake", 10), domain.IncompleteResultError, "incomplete_result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			provider.userErr = tt.err
			router, _ := newTestRouter(t, provider)

			rpcErr := errorOf(t, router.Route(context.Background(), &domain.ToolRequest{Name: ToolGetAssignedTickets}))
			assert.Equal(t, tt.wantCode, rpcErr.Code)
			data := rpcErr.Data.(map[string]interface{})
			assert.Equal(t, tt.wantKind, data["kind"])
			assert.Equal(t, "fake", data["provider"])
			assert.Equal(t, 0, provider.callCount("AssignedTickets"))
		})
	}
}

func TestRequestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, newFakeProvider())

	rpcErr := errorOf(t, router.Route(context.Background(), &domain.ToolRequest{
		Name:      ToolGetTicket,
		Arguments: map[string]interface{}{"id": "ISSUE-999"},
	}))
	assert.Equal(t, domain.NotFoundError, rpcErr.Code)
	assert.Equal(t, false, rpcErr.Data.(map[string]interface{})["retryable"])
}

func TestRequestRouter_RecoversPanics(t *testing.T) {
	provider := newFakeProvider()
	provider.panicOnSearch = true
	router, logs := newTestRouter(t, provider)

	resp := router.Route(context.Background(), &domain.ToolRequest{
		Name:      ToolSearchTickets,
		Arguments: map[string]interface{}{"query": "login"},
	})

	rpcErr := errorOf(t, resp)
	assert.Equal(t, domain.InternalError, rpcErr.Code)
	assert.Contains(t, rpcErr.Message, "search exploded")
	assert.Contains(t, logs.String(), "panic during dispatch")

	// The router keeps serving after a panic.
	provider.panicOnSearch = false
	resp = router.Route(context.Background(), &domain.ToolRequest{
		Name:      ToolSearchTickets,
		Arguments: map[string]interface{}{"query": "login"},
	})
	assert.False(t, resp.IsError)
}

func TestRequestRouter_EmptyListIsNotAnError(t *testing.T) {
	router, _ := newTestRouter(t, newFakeProvider())

	resp := router.Route(context.Background(), &domain.ToolRequest{
		Name:      ToolSearchTickets,
		Arguments: map[string]interface{}{"query": "nothing matches this"},
	})

	require.False(t, resp.IsError)
	var body domain.TicketList
	require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &body))
	assert.Equal(t, 0, body.Count)
	assert.NotNil(t, body.Tickets)
	assert.True(t, strings.Contains(resp.Content[0].Text, `"tickets": []`))
}

func TestRequestRouter_ReadResource(t *testing.T) {
	router, _ := newTestRouter(t, newFakeProvider())

	var uris []string
	for _, res := range router.ListAllResources() {
		uris = append(uris, res.URI)
	}
	assert.Equal(t, []string{ResourceAssignedTickets, ResourceCurrentUser, ResourceCurrentWorkspace}, uris)

	res, rpcErr := router.ReadResource(context.Background(), ResourceCurrentUser)
	require.Nil(t, rpcErr)
	assert.Equal(t, ResourceCurrentUser, res.URI)
	assert.Equal(t, "application/json", res.MimeType)
	assert.Contains(t, res.Text, `"id": "user-1"`)

	res, rpcErr = router.ReadResource(context.Background(), ResourceAssignedTickets)
	require.Nil(t, rpcErr)
	var list domain.TicketList
	require.NoError(t, json.Unmarshal([]byte(res.Text), &list))
	assert.Equal(t, 3, list.Count)
}

func TestRequestRouter_ReadResourceErrors(t *testing.T) {
	provider := newFakeProvider()
	provider.userErr = domain.NewAuthError("fake", "token rejected", nil)
	router, _ := newTestRouter(t, provider)

	_, rpcErr := router.ReadResource(context.Background(), ResourceCurrentUser)
	require.NotNil(t, rpcErr)
	assert.Equal(t, domain.AuthenticationError, rpcErr.Code)

	_, rpcErr = router.ReadResource(context.Background(), "user://someone-else")
	require.NotNil(t, rpcErr)
	assert.Equal(t, domain.MethodNotFound, rpcErr.Code)
	assert.Equal(t, "unknown_resource", rpcErr.Data.(map[string]interface{})["kind"])
}

func TestRequestRouter_ConcurrentRoutes(t *testing.T) {
	provider := newFakeProvider()
	router, _ := newTestRouter(t, provider)

	const n = 20
	done := make(chan *domain.ToolResponse, n)
	for i := 0; i < n; i++ {
		go func() {
			done <- router.Route(context.Background(), &domain.ToolRequest{Name: ToolGetActiveTickets})
		}()
	}
	for i := 0; i < n; i++ {
		resp := <-done
		assert.False(t, resp.IsError)
	}
	assert.Equal(t, n, provider.callCount("AssignedTickets"))
}

func TestNewRequestID(t *testing.T) {
	a, b := newRequestID(), newRequestID()
	assert.Len(t, a, requestIDLength)
	assert.NotEqual(t, a, b)
}
