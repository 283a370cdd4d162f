package application

import (
	"context"
	"fmt"

	"tracker-mcp-server/internal/domain"
)

// Tool name constants for ticket operations
const (
	ToolGetAssignedTickets = "get_assigned_tickets"
	ToolGetCurrentUser     = "get_current_user"
	ToolSearchTickets      = "search_tickets"
	ToolGetTicket          = "get_ticket"
	ToolGetWorkspace       = "get_workspace"
	ToolGetActiveTickets   = "get_active_tickets"
	ToolCreateTicket       = "create_ticket"
)

// Resource URIs
const (
	ResourceAssignedTickets  = "tickets://assigned"
	ResourceCurrentUser      = "user://current"
	ResourceCurrentWorkspace = "workspace://current"
)

// TicketHandler implements ToolHandler and ResourceHandler on top of a
// TicketService. It validates arguments and never talks to a backend itself.
type TicketHandler struct {
	service *TicketService
}

// NewTicketHandler creates a new TicketHandler instance.
func NewTicketHandler(service *TicketService) *TicketHandler {
	return &TicketHandler{service: service}
}

// ToolName returns the identifier for this handler.
func (h *TicketHandler) ToolName() string {
	return "tickets"
}

func noArgsSchema() domain.JSONSchema {
	closed := false
	return domain.JSONSchema{Type: "object", Properties: map[string]interface{}{}, AdditionalProperties: &closed}
}

// ListTools returns available tools for ticket operations.
func (h *TicketHandler) ListTools() []domain.ToolDefinition {
	closed := false
	return []domain.ToolDefinition{
		{
			Name:        ToolGetAssignedTickets,
			Description: "List every ticket assigned to the authenticated user",
			InputSchema: noArgsSchema(),
		},
		{
			Name:        ToolGetCurrentUser,
			Description: "Return the user the configured credentials belong to",
			InputSchema: noArgsSchema(),
		},
		{
			Name:        ToolSearchTickets,
			Description: "Full-text search over tickets",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Text to search for in ticket titles and descriptions",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": fmt.Sprintf("Maximum number of results (default %d, at most %d)", domain.DefaultSearchLimit, domain.MaxSearchLimit),
					},
				},
				Required:             []string{"query"},
				AdditionalProperties: &closed,
			},
		},
		{
			Name:        ToolGetTicket,
			Description: "Retrieve a ticket by its identifier (e.g., ENG-123)",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "The ticket identifier (e.g., ENG-123, PROJ-7 or owner/repo#12)",
					},
				},
				Required:             []string{"id"},
				AdditionalProperties: &closed,
			},
		},
		{
			Name:        ToolGetWorkspace,
			Description: "Describe the workspace and its teams",
			InputSchema: noArgsSchema(),
		},
		{
			Name:        ToolGetActiveTickets,
			Description: "List the authenticated user's open and in-progress tickets",
			InputSchema: noArgsSchema(),
		},
		{
			Name:        ToolCreateTicket,
			Description: "Create a new ticket",
			InputSchema: domain.JSONSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"title": map[string]interface{}{
						"type":        "string",
						"description": "The ticket title",
					},
					"description": map[string]interface{}{
						"type":        "string",
						"description": "The ticket description (optional)",
					},
					"team_id": map[string]interface{}{
						"type":        "string",
						"description": "Team id or key (optional when the workspace has a single team)",
					},
					"project_id": map[string]interface{}{
						"type":        "string",
						"description": "Project id or key (optional)",
					},
					"label_ids": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Label ids or names (optional)",
					},
					"priority": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"none", "urgent", "high", "medium", "low"},
						"description": "Ticket priority (optional)",
					},
				},
				Required:             []string{"title"},
				AdditionalProperties: &closed,
			},
		},
	}
}

// Bind validates req and returns the service call it maps to.
func (h *TicketHandler) Bind(req *domain.ToolRequest) (domain.ToolCall, error) {
	args := req.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	switch req.Name {
	case ToolGetAssignedTickets:
		return h.bindNoArgs(args, func(ctx context.Context) (interface{}, error) {
			return h.service.GetAssignedIssues(ctx)
		})
	case ToolGetCurrentUser:
		return h.bindNoArgs(args, func(ctx context.Context) (interface{}, error) {
			return h.service.GetCurrentUser(ctx)
		})
	case ToolGetWorkspace:
		return h.bindNoArgs(args, func(ctx context.Context) (interface{}, error) {
			return h.service.GetWorkspace(ctx)
		})
	case ToolGetActiveTickets:
		return h.bindNoArgs(args, func(ctx context.Context) (interface{}, error) {
			return h.service.GetActiveIssues(ctx)
		})
	case ToolSearchTickets:
		return h.bindSearch(args)
	case ToolGetTicket:
		return h.bindGetTicket(args)
	case ToolCreateTicket:
		return h.bindCreate(args)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", req.Name),
		}
	}
}

func (h *TicketHandler) bindNoArgs(args map[string]interface{}, call domain.ToolCall) (domain.ToolCall, error) {
	if err := rejectUnknownParams(args); err != nil {
		return nil, err
	}
	return call, nil
}

func (h *TicketHandler) bindSearch(args map[string]interface{}) (domain.ToolCall, error) {
	if err := rejectUnknownParams(args, "query", "limit"); err != nil {
		return nil, err
	}
	query, err := getStringParam(args, "query", true)
	if err != nil {
		return nil, err
	}
	limit, err := getOptionalIntParam(args, "limit")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (interface{}, error) {
		return h.service.SearchIssues(ctx, query, limit)
	}, nil
}

func (h *TicketHandler) bindGetTicket(args map[string]interface{}) (domain.ToolCall, error) {
	if err := rejectUnknownParams(args, "id"); err != nil {
		return nil, err
	}
	id, err := getStringParam(args, "id", true)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (interface{}, error) {
		return h.service.GetIssue(ctx, id)
	}, nil
}

func (h *TicketHandler) bindCreate(args map[string]interface{}) (domain.ToolCall, error) {
	if err := rejectUnknownParams(args, "title", "description", "team_id", "project_id", "label_ids", "priority"); err != nil {
		return nil, err
	}

	var draft domain.TicketDraft
	var err error
	if draft.Title, err = getStringParam(args, "title", true); err != nil {
		return nil, err
	}
	if draft.Description, err = getStringParam(args, "description", false); err != nil {
		return nil, err
	}
	if draft.TeamID, err = getStringParam(args, "team_id", false); err != nil {
		return nil, err
	}
	if draft.ProjectID, err = getStringParam(args, "project_id", false); err != nil {
		return nil, err
	}
	if draft.LabelIDs, err = getStringSliceParam(args, "label_ids"); err != nil {
		return nil, err
	}
	priority, err := getStringParam(args, "priority", false)
	if err != nil {
		return nil, err
	}
	if priority != "" {
		p, ok := domain.ParsePriority(priority)
		if !ok {
			return nil, domain.NewValidationError("invalid priority %q: must be one of none, urgent, high, medium, low", priority)
		}
		draft.Priority = p
	}

	return func(ctx context.Context) (interface{}, error) {
		return h.service.CreateIssue(ctx, draft)
	}, nil
}

// ListResources returns the read-only resources mirrored from tools.
func (h *TicketHandler) ListResources() []domain.ResourceDefinition {
	return []domain.ResourceDefinition{
		{
			URI:         ResourceAssignedTickets,
			Name:        "assigned_tickets",
			Description: "Tickets assigned to the authenticated user",
			MimeType:    "application/json",
		},
		{
			URI:         ResourceCurrentUser,
			Name:        "current_user",
			Description: "The authenticated user",
			MimeType:    "application/json",
		},
		{
			URI:         ResourceCurrentWorkspace,
			Name:        "current_workspace",
			Description: "The workspace and its teams",
			MimeType:    "application/json",
		},
	}
}

// ReadResource returns the domain record behind uri.
func (h *TicketHandler) ReadResource(ctx context.Context, uri string) (interface{}, error) {
	switch uri {
	case ResourceAssignedTickets:
		return h.service.GetAssignedIssues(ctx)
	case ResourceCurrentUser:
		return h.service.GetCurrentUser(ctx)
	case ResourceCurrentWorkspace:
		return h.service.GetWorkspace(ctx)
	default:
		return nil, &domain.Error{
			Code:    domain.MethodNotFound,
			Message: fmt.Sprintf("unknown resource: %s", uri),
		}
	}
}
