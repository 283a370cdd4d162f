package application

import (
	"context"
	"strings"
	"sync"
	"time"

	"tracker-mcp-server/internal/domain"
)

// fakeProvider is an in-memory TicketProvider with canned data. Setting
// userErr makes every user-dependent call fail.
type fakeProvider struct {
	mu sync.Mutex

	user      *domain.User
	userErr   error
	tickets   []domain.Ticket
	workspace *domain.Workspace
	err       error

	calls         map[string]int
	lastCriteria  domain.SearchCriteria
	overReturn    int
	created       []domain.TicketDraft
	panicOnSearch bool
}

func newFakeProvider() *fakeProvider {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeProvider{
		user: &domain.User{ID: "user-1", Name: "Ada Lovelace", Email: "ada@example.com", Active: true},
		tickets: []domain.Ticket{
			{
				ID: "ISSUE-123", NodeID: "uuid-123", Provider: "fake", Title: "Fix login bug",
				Description: "Users cannot log in", Status: domain.StatusInProgress, StatusName: "In Progress",
				Priority: domain.PriorityHigh, AssigneeID: "user-1",
				Labels:    []domain.Label{{ID: "l1", Name: "bug"}},
				Project:   &domain.Project{ID: "p1", Name: "Auth"},
				CreatedAt: created, UpdatedAt: created.Add(time.Hour),
				URL: "https://tracker.example.com/ISSUE-123",
			},
			{
				ID: "ISSUE-124", Provider: "fake", Title: "Login bug on mobile", Status: domain.StatusOpen,
				Priority: domain.PriorityLow, AssigneeID: "user-1", Labels: []domain.Label{},
				CreatedAt: created, UpdatedAt: created,
			},
			{
				ID: "ISSUE-125", Provider: "fake", Title: "Old release notes", Status: domain.StatusDone,
				Priority: domain.PriorityNone, AssigneeID: "user-1", Labels: []domain.Label{},
				CreatedAt: created, UpdatedAt: created,
			},
			{
				ID: "ISSUE-200", Provider: "fake", Title: "Someone else's login bug", Status: domain.StatusOpen,
				Priority: domain.PriorityMedium, AssigneeID: "user-2", Labels: []domain.Label{},
				CreatedAt: created, UpdatedAt: created,
			},
		},
		workspace: &domain.Workspace{ID: "org-1", Name: "Acme", URL: "https://tracker.example.com/acme",
			Teams: []domain.Team{{ID: "t1", Name: "Engineering", Key: "ENG"}}},
		calls: map[string]int{},
	}
}

func (f *fakeProvider) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeProvider) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CurrentUser(ctx context.Context) (*domain.User, error) {
	f.record("CurrentUser")
	if f.userErr != nil {
		return nil, f.userErr
	}
	u := *f.user
	return &u, nil
}

func (f *fakeProvider) AssignedTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	f.record("AssignedTickets")
	if f.err != nil {
		return nil, f.err
	}
	out := []domain.Ticket{}
	for _, t := range f.tickets {
		if t.AssigneeID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// SearchTickets matches when every word of the query appears in the title
// or description, case-insensitively.
func (f *fakeProvider) SearchTickets(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Ticket, error) {
	f.record("SearchTickets")
	f.mu.Lock()
	f.lastCriteria = criteria
	f.mu.Unlock()
	if f.panicOnSearch {
		panic("search exploded")
	}
	if f.err != nil {
		return nil, f.err
	}

	words := strings.Fields(strings.ToLower(criteria.Query))
	out := []domain.Ticket{}
	for _, t := range f.tickets {
		text := strings.ToLower(t.Title + " " + t.Description)
		match := true
		for _, w := range words {
			if !strings.Contains(text, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, t)
		}
	}
	for i := 0; i < f.overReturn; i++ {
		out = append(out, domain.Ticket{ID: "EXTRA", Provider: "fake"})
	}
	return out, nil
}

func (f *fakeProvider) TicketByID(ctx context.Context, id string) (*domain.Ticket, error) {
	f.record("TicketByID")
	if f.err != nil {
		return nil, f.err
	}
	for _, t := range f.tickets {
		if t.ID == id {
			ticket := t
			return &ticket, nil
		}
	}
	return nil, domain.NewNotFoundError("fake", "ticket "+id+" not found")
}

func (f *fakeProvider) Workspace(ctx context.Context) (*domain.Workspace, error) {
	f.record("Workspace")
	if f.err != nil {
		return nil, f.err
	}
	ws := *f.workspace
	return &ws, nil
}

func (f *fakeProvider) CreateTicket(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	f.record("CreateTicket")
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, draft)
	return &domain.Ticket{
		ID: "ISSUE-900", Provider: "fake", Title: draft.Title, Description: draft.Description,
		Status: domain.StatusOpen, Priority: draft.Priority, Labels: []domain.Label{},
	}, nil
}
