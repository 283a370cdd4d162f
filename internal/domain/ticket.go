package domain

import (
	"strings"
	"time"
)

// Search limits applied by the application core before a provider is called.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 200
)

// Status is the provider-neutral lifecycle state of a ticket.
// Each adapter maps its backend-native workflow states onto this closed set.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCanceled   Status = "canceled"
	// StatusOther covers backend states with no sensible mapping.
	StatusOther Status = "other"
)

// Active reports whether work on the ticket is still outstanding.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// ParseStatus converts a user supplied status name to a Status.
// Unknown values return false.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOpen:
		return StatusOpen, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusDone:
		return StatusDone, true
	case StatusCanceled:
		return StatusCanceled, true
	case StatusOther:
		return StatusOther, true
	}
	return "", false
}

// Priority is the provider-neutral urgency of a ticket.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// PriorityFromLevel maps the numeric 0..4 scale used by Linear
// (0 none, 1 urgent, 2 high, 3 medium, 4 low) to a Priority.
func PriorityFromLevel(level int) Priority {
	switch level {
	case 1:
		return PriorityUrgent
	case 2:
		return PriorityHigh
	case 3:
		return PriorityMedium
	case 4:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// Level is the inverse of PriorityFromLevel.
func (p Priority) Level() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	default:
		return 0
	}
}

// ParsePriority converts a user supplied priority name to a Priority.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityNone:
		return PriorityNone, true
	case PriorityUrgent:
		return PriorityUrgent, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityLow:
		return PriorityLow, true
	}
	return "", false
}

// Ticket is a unit of tracked work as seen by callers of the server.
// ID is the human-facing identifier (ENG-123, PROJ-7, owner/repo#12) and is
// only unique within the provider named by Provider.
type Ticket struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"nodeId,omitempty"`
	Provider    string    `json:"provider"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	StatusName  string    `json:"statusName,omitempty"`
	Priority    Priority  `json:"priority"`
	AssigneeID  string    `json:"assigneeId,omitempty"`
	Labels      []Label   `json:"labels"`
	Project     *Project  `json:"project,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	URL         string    `json:"url,omitempty"`
}

// User is an account on the tracking backend.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Active bool   `json:"active"`
}

// Team is a grouping of tickets inside a workspace. Jira projects and
// GitHub teams are reported as teams.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
}

// Workspace is the top-level organizational container of a backend account.
type Workspace struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Teams []Team `json:"teams"`
}

// Label is a weak reference to a backend label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Project is a weak reference to a backend project.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SearchCriteria describes a provider search. Limit is always set by the
// application core before it reaches an adapter.
type SearchCriteria struct {
	Query      string
	AssigneeID string
	Statuses   []Status
	Limit      int
}

// MatchesStatus reports whether s passes the status filter.
// An empty filter matches everything.
func (c SearchCriteria) MatchesStatus(s Status) bool {
	if len(c.Statuses) == 0 {
		return true
	}
	for _, want := range c.Statuses {
		if want == s {
			return true
		}
	}
	return false
}

// TicketDraft is the input for creating a ticket.
type TicketDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TeamID      string   `json:"teamId,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	LabelIDs    []string `json:"labelIds,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
}

// Validate checks the provider-independent rules for a draft.
func (d TicketDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return NewValidationError("title is required")
	}
	if d.Priority != "" {
		if _, ok := ParsePriority(string(d.Priority)); !ok {
			return NewValidationError("invalid priority %q", d.Priority)
		}
	}
	return nil
}

// ClampLimit bounds a requested result limit to [1, MaxSearchLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}
