package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tracker-mcp-server/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestTicketService_GetAssignedIssues(t *testing.T) {
	provider := newFakeProvider()
	svc := NewTicketService(provider)

	tickets, err := svc.GetAssignedIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	for _, ticket := range tickets {
		assert.Equal(t, "user-1", ticket.AssigneeID)
	}
	assert.Equal(t, 1, provider.callCount("CurrentUser"))
	assert.Equal(t, 1, provider.callCount("AssignedTickets"))
}

func TestTicketService_GetAssignedIssuesFailsWithUserError(t *testing.T) {
	kinds := []*domain.TrackerError{
		domain.NewAuthError("fake", "invalid API key", nil),
		domain.NewUnavailableError("fake", "502", errors.New("bad gateway")),
		domain.NewRateLimitError("fake", 0, nil),
	}

	for _, userErr := range kinds {
		t.Run(string(userErr.Kind), func(t *testing.T) {
			provider := newFakeProvider()
			provider.userErr = userErr
			svc := NewTicketService(provider)

			tickets, err := svc.GetAssignedIssues(context.Background())
			assert.Nil(t, tickets)
			assert.Equal(t, userErr.Kind, domain.KindOf(err))
			assert.Equal(t, 0, provider.callCount("AssignedTickets"))
		})
	}
}

func TestTicketService_GetActiveIssues(t *testing.T) {
	svc := NewTicketService(newFakeProvider())

	tickets, err := svc.GetActiveIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.True(t, ticket.Status.Active(), ticket.ID)
	}
}

func TestTicketService_SearchIssues(t *testing.T) {
	t.Run("default limit", func(t *testing.T) {
		provider := newFakeProvider()
		svc := NewTicketService(provider)

		tickets, err := svc.SearchIssues(context.Background(), "  login bug ", nil)
		require.NoError(t, err)
		assert.Len(t, tickets, 3)
		assert.Equal(t, "login bug", provider.lastCriteria.Query)
		assert.Equal(t, domain.DefaultSearchLimit, provider.lastCriteria.Limit)
		for _, ticket := range tickets {
			assert.Contains(t, strings.ToLower(ticket.Title+" "+ticket.Description), "login")
		}
	})

	t.Run("limit is clamped", func(t *testing.T) {
		tests := []struct {
			limit int
			want  int
		}{
			{0, 1},
			{-5, 1},
			{10, 10},
			{500, domain.MaxSearchLimit},
		}
		for _, tt := range tests {
			provider := newFakeProvider()
			_, err := NewTicketService(provider).SearchIssues(context.Background(), "bug", intPtr(tt.limit))
			require.NoError(t, err)
			assert.Equal(t, tt.want, provider.lastCriteria.Limit, "limit %d", tt.limit)
		}
	})

	t.Run("over-returning provider is truncated", func(t *testing.T) {
		provider := newFakeProvider()
		provider.overReturn = 10
		tickets, err := NewTicketService(provider).SearchIssues(context.Background(), "bug", intPtr(2))
		require.NoError(t, err)
		assert.Len(t, tickets, 2)
	})

	t.Run("empty query", func(t *testing.T) {
		provider := newFakeProvider()
		for _, q := range []string{"", "   ", "\t\n"} {
			_, err := NewTicketService(provider).SearchIssues(context.Background(), q, nil)
			assert.True(t, domain.IsKind(err, domain.KindValidation), "query %q", q)
		}
		assert.Equal(t, 0, provider.callCount("SearchTickets"))
	})

	t.Run("no matches is an empty list", func(t *testing.T) {
		tickets, err := NewTicketService(newFakeProvider()).SearchIssues(context.Background(), "nothing matches this", nil)
		require.NoError(t, err)
		assert.NotNil(t, tickets)
		assert.Empty(t, tickets)
	})
}

func TestTicketService_GetIssue(t *testing.T) {
	provider := newFakeProvider()
	svc := NewTicketService(provider)

	first, err := svc.GetIssue(context.Background(), "ISSUE-123")
	require.NoError(t, err)
	second, err := svc.GetIssue(context.Background(), " ISSUE-123 ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "ISSUE-123", first.ID)

	_, err = svc.GetIssue(context.Background(), "ISSUE-999")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	calls := provider.callCount("TicketByID")
	_, err = svc.GetIssue(context.Background(), "  ")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, calls, provider.callCount("TicketByID"))
}

func TestTicketService_PassThroughs(t *testing.T) {
	provider := newFakeProvider()
	svc := NewTicketService(provider)

	assert.Equal(t, "fake", svc.ProviderName())

	user, err := svc.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", user.Name)

	ws, err := svc.GetWorkspace(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme", ws.Name)

	provider.err = domain.NewUnavailableError("fake", "", context.DeadlineExceeded)
	_, err = svc.GetWorkspace(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTicketService_CreateIssue(t *testing.T) {
	provider := newFakeProvider()
	svc := NewTicketService(provider)

	ticket, err := svc.CreateIssue(context.Background(), domain.TicketDraft{Title: "  New thing ", TeamID: " ENG "})
	require.NoError(t, err)
	assert.Equal(t, "New thing", ticket.Title)
	require.Len(t, provider.created, 1)
	assert.Equal(t, "ENG", provider.created[0].TeamID)

	_, err = svc.CreateIssue(context.Background(), domain.TicketDraft{Title: " "})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	_, err = svc.CreateIssue(context.Background(), domain.TicketDraft{Title: "x", Priority: "whenever"})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Len(t, provider.created, 1)
}

// TestProperty_SearchQueryValidation checks that non-blank queries never
// fail validation and blank ones always do.
func TestProperty_SearchQueryValidation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	svc := NewTicketService(newFakeProvider())

	properties.Property("non-blank query is accepted", prop.ForAll(
		func(q string) bool {
			_, err := svc.SearchIssues(context.Background(), q, nil)
			return !domain.IsKind(err, domain.KindValidation)
		},
		gen.AnyString().SuchThat(func(s string) bool { return strings.TrimSpace(s) != "" }),
	))

	properties.Property("blank query is rejected", prop.ForAll(
		func(n int) bool {
			_, err := svc.SearchIssues(context.Background(), strings.Repeat(" \t", n), nil)
			return domain.IsKind(err, domain.KindValidation)
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

// TestProperty_SearchResultBound checks that results never exceed the
// effective limit and never drop eligible tickets below it.
func TestProperty_SearchResultBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("count is min(limit, eligible)", prop.ForAll(
		func(limit, extra int) bool {
			provider := newFakeProvider()
			provider.overReturn = extra
			eligible := 3 + extra // "bug" matches three canned tickets

			tickets, err := NewTicketService(provider).SearchIssues(context.Background(), "bug", &limit)
			if err != nil {
				return false
			}
			return len(tickets) == min(domain.ClampLimit(limit), eligible)
		},
		gen.IntRange(-10, 300),
		gen.IntRange(0, 250),
	))

	properties.TestingRun(t)
}

func TestTicketService_GetIssuesAssignedTo(t *testing.T) {
	provider := newFakeProvider()
	service := NewTicketService(provider)

	tickets, err := service.GetIssuesAssignedTo(context.Background(), "user-2")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "ISSUE-200", tickets[0].ID)
	assert.Equal(t, 0, provider.callCount("CurrentUser"), "user is already resolved")

	_, err = service.GetIssuesAssignedTo(context.Background(), "  ")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Equal(t, 1, provider.callCount("AssignedTickets"))
}
