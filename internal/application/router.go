package application

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"

	"tracker-mcp-server/internal/domain"
)

// requestIDAlphabet and requestIDLength shape the per-request ids in logs.
const (
	requestIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	requestIDLength   = 12
)

// requestState is a step of a dispatched request.
type requestState string

const (
	stateReceived   requestState = "received"
	stateValidated  requestState = "validated"
	stateDispatched requestState = "dispatched"
	stateCompleted  requestState = "completed"
	stateFailed     requestState = "failed"
)

// RequestRouter dispatches tool calls and resource reads to their handlers.
// Every request moves through received, validated, dispatched and then
// completed or failed; each transition is logged under a request id.
// The router holds no per-request state and is safe for concurrent use.
type RequestRouter struct {
	tools     map[string]domain.ToolHandler
	resources map[string]domain.ResourceHandler
	mapper    domain.ResponseMapper
	logger    *slog.Logger
}

// NewRequestRouter creates a RequestRouter. Tools are routed by their exact
// name. Handlers that also implement domain.ResourceHandler have their
// resources registered by URI.
func NewRequestRouter(mapper domain.ResponseMapper, logger *slog.Logger, handlers ...domain.ToolHandler) *RequestRouter {
	if logger == nil {
		logger = slog.Default()
	}
	router := &RequestRouter{
		tools:     make(map[string]domain.ToolHandler),
		resources: make(map[string]domain.ResourceHandler),
		mapper:    mapper,
		logger:    logger,
	}

	for _, handler := range handlers {
		for _, tool := range handler.ListTools() {
			router.tools[tool.Name] = handler
		}
		if rh, ok := handler.(domain.ResourceHandler); ok {
			for _, res := range rh.ListResources() {
				router.resources[res.URI] = rh
			}
		}
	}

	return router
}

// Route runs a tool request to completion. It always returns a response:
// failures, including panics in handlers, become error responses.
func (r *RequestRouter) Route(ctx context.Context, req *domain.ToolRequest) *domain.ToolResponse {
	log := r.logger.With("request_id", newRequestID(), "tool", req.Name)
	start := time.Now()
	log.Debug("tool request", "state", stateReceived)

	result, err := r.dispatchTool(ctx, log, req)
	if err != nil {
		rpcErr := r.mapper.MapError(err)
		r.logFailure(log, rpcErr, start)
		return r.mapper.MapErrorResponse(rpcErr)
	}

	resp, err := r.mapper.MapToToolResponse(result)
	if err != nil {
		rpcErr := r.mapper.MapError(err)
		r.logFailure(log, rpcErr, start)
		return r.mapper.MapErrorResponse(rpcErr)
	}

	log.Info("tool request", "state", stateCompleted, "duration_ms", time.Since(start).Milliseconds())
	return resp
}

func (r *RequestRouter) dispatchTool(ctx context.Context, log *slog.Logger, req *domain.ToolRequest) (result interface{}, err error) {
	defer recoverPanic(log, &err)

	handler, exists := r.tools[req.Name]
	if !exists {
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", req.Name),
			Data:    map[string]interface{}{"kind": "unknown_tool", "retryable": false},
		}
	}

	call, err := handler.Bind(req)
	if err != nil {
		return nil, err
	}
	log.Debug("tool request", "state", stateValidated)

	log.Debug("tool request", "state", stateDispatched)
	return call(ctx)
}

// ReadResource reads the resource at uri. Failures are returned as protocol
// errors for the runtime to report.
func (r *RequestRouter) ReadResource(ctx context.Context, uri string) (*domain.Resource, *domain.Error) {
	log := r.logger.With("request_id", newRequestID(), "resource", uri)
	start := time.Now()
	log.Debug("resource read", "state", stateReceived)

	result, err := r.dispatchResource(ctx, log, uri)
	if err == nil {
		var res *domain.Resource
		if res, err = r.mapper.MapToResource(uri, result); err == nil {
			log.Info("resource read", "state", stateCompleted, "duration_ms", time.Since(start).Milliseconds())
			return res, nil
		}
	}

	rpcErr := r.mapper.MapError(err)
	r.logFailure(log, rpcErr, start)
	return nil, rpcErr
}

func (r *RequestRouter) dispatchResource(ctx context.Context, log *slog.Logger, uri string) (result interface{}, err error) {
	defer recoverPanic(log, &err)

	handler, exists := r.resources[uri]
	if !exists {
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown resource: %s", uri),
			Data:    map[string]interface{}{"kind": "unknown_resource", "retryable": false},
		}
	}
	// Resources take no arguments, so they are valid as soon as they resolve.
	log.Debug("resource read", "state", stateValidated)

	log.Debug("resource read", "state", stateDispatched)
	return handler.ReadResource(ctx, uri)
}

func (r *RequestRouter) logFailure(log *slog.Logger, rpcErr *domain.Error, start time.Time) {
	attrs := []any{
		"state", stateFailed,
		"code", rpcErr.Code,
		"error", rpcErr.Message,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if data, ok := rpcErr.Data.(map[string]interface{}); ok {
		attrs = append(attrs, "kind", data["kind"])
	}
	// Caller mistakes are routine; backend and internal failures are not.
	if rpcErr.Code == domain.InvalidParams || rpcErr.Code == domain.MethodNotFound || rpcErr.Code == domain.NotFoundError {
		log.Info("request failed", attrs...)
		return
	}
	log.Warn("request failed", attrs...)
}

// recoverPanic turns a panic in the deferring function into an error.
func recoverPanic(log *slog.Logger, err *error) {
	if p := recover(); p != nil {
		log.Error("panic during dispatch", "panic", p, "stack", string(debug.Stack()))
		*err = fmt.Errorf("internal error: %v", p)
	}
}

func newRequestID() string {
	id, err := nanoid.Generate(requestIDAlphabet, requestIDLength)
	if err != nil {
		return "unknown"
	}
	return id
}

// ListAllTools aggregates tool definitions from all registered handlers,
// sorted by name.
func (r *RequestRouter) ListAllTools() []domain.ToolDefinition {
	seen := make(map[domain.ToolHandler]bool)
	var allTools []domain.ToolDefinition
	for _, handler := range r.tools {
		if seen[handler] {
			continue
		}
		seen[handler] = true
		allTools = append(allTools, handler.ListTools()...)
	}
	sort.Slice(allTools, func(i, j int) bool { return allTools[i].Name < allTools[j].Name })
	return allTools
}

// ListAllResources aggregates resource definitions, sorted by URI.
func (r *RequestRouter) ListAllResources() []domain.ResourceDefinition {
	seen := make(map[domain.ResourceHandler]bool)
	var all []domain.ResourceDefinition
	for _, handler := range r.resources {
		if seen[handler] {
			continue
		}
		seen[handler] = true
		all = append(all, handler.ListResources()...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].URI < all[j].URI })
	return all
}

// GetHandler returns the handler serving a tool.
// This is useful for testing and debugging.
func (r *RequestRouter) GetHandler(toolName string) (domain.ToolHandler, bool) {
	handler, exists := r.tools[toolName]
	return handler, exists
}
