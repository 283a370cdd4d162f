package domain

import (
	"context"
)

// TicketProvider is the port every tracking backend implements.
// Implementations must return complete domain records and *TrackerError
// values; no backend-native shape may cross this boundary.
type TicketProvider interface {
	// Name returns the provider tag carried by every Ticket it produces.
	Name() string

	// CurrentUser returns the account the configured credentials belong to.
	CurrentUser(ctx context.Context) (*User, error)

	// AssignedTickets returns every ticket assigned to userID across all
	// backend pages. An empty slice is returned when there are none.
	AssignedTickets(ctx context.Context, userID string) ([]Ticket, error)

	// SearchTickets returns at most criteria.Limit matching tickets.
	SearchTickets(ctx context.Context, criteria SearchCriteria) ([]Ticket, error)

	// TicketByID looks up a single ticket by its human-facing identifier.
	TicketByID(ctx context.Context, id string) (*Ticket, error)

	// Workspace returns the organization and its teams.
	Workspace(ctx context.Context) (*Workspace, error)

	// CreateTicket creates a ticket from draft and returns it as stored.
	CreateTicket(ctx context.Context, draft TicketDraft) (*Ticket, error)
}
