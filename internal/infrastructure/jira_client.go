package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"tracker-mcp-server/internal/domain"
)

const jiraProvider = domain.ProviderJira

// jiraPageSize is the maxResults requested per search page.
const jiraPageSize = 50

var jiraKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*-[0-9]+$|^[0-9]+$`)

// JiraClient implements domain.TicketProvider against Jira Cloud or Server
// using go-jira. User input only reaches JQL through jqlQuote.
type JiraClient struct {
	client  *jira.Client
	baseURL string
	timeout time.Duration
}

// NewJiraClient creates a new Jira API client.
// The baseURL should be the root URL of the Jira instance (e.g., "https://example.atlassian.net").
// The httpClient should be an authenticated client from domain.NewAuthenticatedClient.
func NewJiraClient(baseURL string, httpClient *http.Client, timeout time.Duration) (*JiraClient, error) {
	client, err := jira.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}
	return &JiraClient{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		timeout: timeout,
	}, nil
}

// Name returns the provider tag.
func (c *JiraClient) Name() string {
	return jiraProvider
}

// CurrentUser returns the account behind the configured credentials.
func (c *JiraClient) CurrentUser(ctx context.Context) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, resp, err := c.client.User.GetSelfWithContext(ctx)
	if err != nil {
		return nil, mapJiraError(ctx, resp, err)
	}
	return toJiraDomainUser(user), nil
}

// AssignedTickets returns every issue assigned to userID.
func (c *JiraClient) AssignedTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user id is required")
	}

	jql := "assignee = " + jqlQuote(userID) + " ORDER BY updated DESC"
	issues, err := drainPages(ctx, jiraProvider, c.searchPage(jql, jiraPageSize))
	if err != nil {
		return nil, err
	}
	return c.toDomainTickets(issues), nil
}

// SearchTickets runs a full-text JQL search.
func (c *JiraClient) SearchTickets(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Ticket, error) {
	limit := domain.ClampLimit(criteria.Limit)

	issues, err := collectPages(ctx, jiraProvider, limit, c.searchPage(buildSearchJQL(criteria), min(limit, jiraPageSize)))
	if err != nil {
		return nil, err
	}

	tickets := c.toDomainTickets(issues)
	filtered := tickets[:0]
	for _, t := range tickets {
		if criteria.MatchesStatus(t.Status) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// buildSearchJQL composes the JQL for a search. Every caller value is quoted.
func buildSearchJQL(criteria domain.SearchCriteria) string {
	clauses := []string{"text ~ " + jqlQuote(strings.TrimSpace(criteria.Query))}
	if criteria.AssigneeID != "" {
		clauses = append(clauses, "assignee = "+jqlQuote(criteria.AssigneeID))
	}
	if categories := jiraStatusCategories(criteria.Statuses); len(categories) > 0 {
		quoted := make([]string, len(categories))
		for i, cat := range categories {
			quoted[i] = jqlQuote(cat)
		}
		clauses = append(clauses, "statusCategory in ("+strings.Join(quoted, ", ")+")")
	}
	return strings.Join(clauses, " AND ") + " ORDER BY updated DESC"
}

// searchPage adapts startAt pagination to a pageFetcher.
func (c *JiraClient) searchPage(jql string, pageSize int) pageFetcher[jira.Issue] {
	return func(ctx context.Context, cursor string) ([]jira.Issue, string, error) {
		startAt := 0
		if cursor != "" {
			startAt, _ = strconv.Atoi(cursor)
		}

		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: pageSize,
		})
		if err != nil {
			return nil, "", mapJiraError(ctx, resp, err)
		}

		next := startAt + len(issues)
		if len(issues) == 0 || resp == nil || next >= resp.Total {
			return issues, "", nil
		}
		return issues, strconv.Itoa(next), nil
	}
}

// TicketByID looks up an issue by key (PROJ-7) or numeric id.
func (c *JiraClient) TicketByID(ctx context.Context, id string) (*domain.Ticket, error) {
	id = strings.TrimSpace(id)
	if !jiraKeyPattern.MatchString(id) {
		return nil, domain.NewValidationError("invalid Jira issue key %q: expected PROJECT-123", id)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	issue, resp, err := c.client.Issue.GetWithContext(ctx, strings.ToUpper(id), nil)
	if err != nil {
		return nil, mapJiraError(ctx, resp, err)
	}

	ticket := c.toDomainTicket(*issue)
	return &ticket, nil
}

// Workspace reports the Jira site with its projects as teams.
func (c *JiraClient) Workspace(ctx context.Context) (*domain.Workspace, error) {
	teams, err := c.projects(ctx)
	if err != nil {
		return nil, err
	}

	base := c.client.GetBaseURL()
	return &domain.Workspace{
		ID:    base.Host,
		Name:  base.Host,
		URL:   c.baseURL,
		Teams: teams,
	}, nil
}

func (c *JiraClient) projects(ctx context.Context) ([]domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, resp, err := c.client.Project.GetListWithContext(ctx)
	if err != nil {
		return nil, mapJiraError(ctx, resp, err)
	}

	teams := []domain.Team{}
	if list != nil {
		for _, p := range *list {
			teams = append(teams, domain.Team{ID: p.ID, Name: p.Name, Key: p.Key})
		}
	}
	return teams, nil
}

// CreateTicket creates a Task in the project named by ProjectID or TeamID,
// falling back to the only project when the site has exactly one.
func (c *JiraClient) CreateTicket(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	projectKey := strings.TrimSpace(draft.ProjectID)
	if projectKey == "" {
		projectKey = strings.TrimSpace(draft.TeamID)
	}
	if projectKey == "" {
		projects, err := c.projects(ctx)
		if err != nil {
			return nil, err
		}
		if len(projects) != 1 {
			return nil, domain.NewValidationError("project_id is required: site has %d projects", len(projects))
		}
		projectKey = projects[0].Key
	}

	fields := &jira.IssueFields{
		Project:     jira.Project{Key: projectKey},
		Summary:     strings.TrimSpace(draft.Title),
		Description: draft.Description,
		Type:        jira.IssueType{Name: "Task"},
		Labels:      draft.LabelIDs,
	}
	if name := jiraPriorityName(draft.Priority); name != "" {
		fields.Priority = &jira.Priority{Name: name}
	}

	createCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, resp, err := c.client.Issue.CreateWithContext(createCtx, &jira.Issue{Fields: fields})
	if err != nil {
		return nil, mapJiraError(createCtx, resp, err)
	}

	// The create response only carries id and key.
	return c.TicketByID(ctx, created.Key)
}

// mapJiraError maps a go-jira failure to a canonical kind.
func mapJiraError(ctx context.Context, resp *jira.Response, err error) error {
	if resp == nil || resp.Response == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NewUnavailableError(jiraProvider, "", ctxErr)
		}
		return domain.NewUnavailableError(jiraProvider, "", err)
	}

	// go-jira has already folded the response body into err.
	detail := err
	code := strconv.Itoa(resp.StatusCode)

	switch kind := kindForStatus(resp.StatusCode); kind {
	case domain.KindRateLimit:
		te := domain.NewRateLimitError(jiraProvider, retryAfter(resp.Response), detail)
		te.BackendCode = code
		return te
	case domain.KindUnavailable:
		return domain.NewUnavailableError(jiraProvider, code, detail)
	default:
		return &domain.TrackerError{
			Kind:        kind,
			Provider:    jiraProvider,
			Message:     jiraMessage(kind),
			BackendCode: code,
			Err:         detail,
		}
	}
}

// kindForStatus maps an HTTP status to a kind. It is shared by the REST
// based adapters.
func kindForStatus(status int) domain.Kind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.KindAuth
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusTooManyRequests:
		return domain.KindRateLimit
	default:
		return domain.KindUnavailable
	}
}

func jiraMessage(kind domain.Kind) string {
	switch kind {
	case domain.KindValidation:
		return "request rejected"
	case domain.KindAuth:
		return "authentication failed"
	case domain.KindNotFound:
		return "not found"
	default:
		return "request failed"
	}
}

var jqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// jqlQuote renders s as a double quoted JQL string literal.
func jqlQuote(s string) string {
	return `"` + jqlEscaper.Replace(s) + `"`
}

// jiraStatusCategories maps statuses to JQL status category names.
func jiraStatusCategories(statuses []domain.Status) []string {
	var categories []string
	seen := map[string]bool{}
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	for _, s := range statuses {
		switch s {
		case domain.StatusOpen:
			add("To Do")
		case domain.StatusInProgress:
			add("In Progress")
		case domain.StatusDone, domain.StatusCanceled:
			add("Done")
		}
	}
	return categories
}

// jiraStatus maps a Jira status to a Status. Jira has no canceled
// category, so done statuses with a cancel-like name are reported as canceled.
func jiraStatus(status *jira.Status) domain.Status {
	if status == nil {
		return domain.StatusOther
	}
	switch status.StatusCategory.Key {
	case "new":
		return domain.StatusOpen
	case "indeterminate":
		return domain.StatusInProgress
	case "done":
		name := strings.ToLower(status.Name)
		if strings.Contains(name, "cancel") || strings.Contains(name, "won't") || strings.Contains(name, "declined") {
			return domain.StatusCanceled
		}
		return domain.StatusDone
	default:
		return domain.StatusOther
	}
}

func jiraPriority(p *jira.Priority) domain.Priority {
	if p == nil {
		return domain.PriorityNone
	}
	switch strings.ToLower(p.Name) {
	case "highest", "blocker", "critical":
		return domain.PriorityUrgent
	case "high", "major":
		return domain.PriorityHigh
	case "medium":
		return domain.PriorityMedium
	case "low", "lowest", "minor", "trivial":
		return domain.PriorityLow
	default:
		return domain.PriorityNone
	}
}

func jiraPriorityName(p domain.Priority) string {
	switch p {
	case domain.PriorityUrgent:
		return "Highest"
	case domain.PriorityHigh:
		return "High"
	case domain.PriorityMedium:
		return "Medium"
	case domain.PriorityLow:
		return "Low"
	default:
		return ""
	}
}

// jiraUserID prefers the Cloud account id and falls back to the Server username.
func jiraUserID(u *jira.User) string {
	if u.AccountID != "" {
		return u.AccountID
	}
	return u.Name
}

func toJiraDomainUser(u *jira.User) *domain.User {
	if u == nil {
		return nil
	}
	name := u.DisplayName
	if name == "" {
		name = u.Name
	}
	return &domain.User{
		ID:     jiraUserID(u),
		Name:   name,
		Email:  u.EmailAddress,
		Active: u.Active,
	}
}

func (c *JiraClient) toDomainTickets(issues []jira.Issue) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, len(issues))
	for _, issue := range issues {
		tickets = append(tickets, c.toDomainTicket(issue))
	}
	return tickets
}

func (c *JiraClient) toDomainTicket(issue jira.Issue) domain.Ticket {
	ticket := domain.Ticket{
		ID:       issue.Key,
		NodeID:   issue.ID,
		Provider: jiraProvider,
		Status:   domain.StatusOther,
		Priority: domain.PriorityNone,
		Labels:   []domain.Label{},
		URL:      c.baseURL + "/browse/" + issue.Key,
	}
	if ticket.ID == "" {
		ticket.ID = issue.ID
	}

	f := issue.Fields
	if f == nil {
		return ticket
	}

	ticket.Title = f.Summary
	ticket.Description = f.Description
	ticket.Status = jiraStatus(f.Status)
	if f.Status != nil {
		ticket.StatusName = f.Status.Name
	}
	ticket.Priority = jiraPriority(f.Priority)
	if f.Assignee != nil {
		ticket.AssigneeID = jiraUserID(f.Assignee)
	}
	for _, name := range f.Labels {
		ticket.Labels = append(ticket.Labels, domain.Label{ID: name, Name: name})
	}
	if f.Project.Key != "" {
		ticket.Project = &domain.Project{ID: f.Project.Key, Name: f.Project.Name}
	}
	ticket.CreatedAt = time.Time(f.Created).UTC()
	ticket.UpdatedAt = time.Time(f.Updated).UTC()
	return ticket
}
