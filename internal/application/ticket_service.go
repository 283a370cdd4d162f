package application

import (
	"context"
	"strings"

	"tracker-mcp-server/internal/domain"
)

// TicketService composes provider calls into the operations exposed as tools
// and resources. It performs no I/O of its own and keeps no state between
// calls beyond the provider handle set at construction.
type TicketService struct {
	provider domain.TicketProvider
}

// NewTicketService creates a TicketService backed by provider.
func NewTicketService(provider domain.TicketProvider) *TicketService {
	return &TicketService{provider: provider}
}

// ProviderName returns the active provider tag.
func (s *TicketService) ProviderName() string {
	return s.provider.Name()
}

// GetAssignedIssues returns every ticket assigned to the current user.
// A failed user lookup fails the whole call with the same error.
func (s *TicketService) GetAssignedIssues(ctx context.Context) ([]domain.Ticket, error) {
	user, err := s.provider.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetIssuesAssignedTo(ctx, user.ID)
}

// GetIssuesAssignedTo returns every ticket assigned to an already resolved user.
func (s *TicketService) GetIssuesAssignedTo(ctx context.Context, userID string) ([]domain.Ticket, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError("user id must not be empty")
	}
	return s.provider.AssignedTickets(ctx, userID)
}

// GetActiveIssues returns the current user's tickets that are open or in progress.
func (s *TicketService) GetActiveIssues(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.GetAssignedIssues(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Status.Active() {
			active = append(active, t)
		}
	}
	return active, nil
}

// GetCurrentUser returns the user the credentials belong to.
func (s *TicketService) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	return s.provider.CurrentUser(ctx)
}

// SearchIssues runs a full-text search. A nil limit means
// domain.DefaultSearchLimit; any other value is clamped to
// [1, domain.MaxSearchLimit].
func (s *TicketService) SearchIssues(ctx context.Context, query string, limit *int) ([]domain.Ticket, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("query must not be empty")
	}

	bound := domain.DefaultSearchLimit
	if limit != nil {
		bound = domain.ClampLimit(*limit)
	}

	tickets, err := s.provider.SearchTickets(ctx, domain.SearchCriteria{
		Query: query,
		Limit: bound,
	})
	if err != nil {
		return nil, err
	}
	if len(tickets) > bound {
		tickets = tickets[:bound]
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// GetIssue returns a single ticket by its provider identifier.
func (s *TicketService) GetIssue(ctx context.Context, id string) (*domain.Ticket, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.NewValidationError("id must not be empty")
	}
	return s.provider.TicketByID(ctx, id)
}

// GetWorkspace returns the organization the credentials are bound to.
func (s *TicketService) GetWorkspace(ctx context.Context) (*domain.Workspace, error) {
	return s.provider.Workspace(ctx)
}

// CreateIssue validates draft and creates the ticket.
func (s *TicketService) CreateIssue(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.TeamID = strings.TrimSpace(draft.TeamID)
	draft.ProjectID = strings.TrimSpace(draft.ProjectID)
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return s.provider.CreateTicket(ctx, draft)
}
