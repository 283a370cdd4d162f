package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tracker-mcp-server/internal/domain"

	"golang.org/x/sync/errgroup"
)

const linearProvider = domain.ProviderLinear

// linearPageSize is the page size requested from Linear connections.
const linearPageSize = 50

var (
	linearIdentifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*-[0-9]+$`)
	uuidPattern             = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// LinearClient implements domain.TicketProvider against the Linear GraphQL API.
// All caller input travels as GraphQL variables; query documents are constants.
type LinearClient struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewLinearClient creates a new Linear API client.
// The httpClient should carry the API key (see domain.NewAuthenticatedClient).
// timeout bounds every individual GraphQL call.
func NewLinearClient(endpoint string, httpClient *http.Client, timeout time.Duration) *LinearClient {
	if timeout <= 0 {
		timeout = domain.DefaultRequestTimeout
	}
	return &LinearClient{
		endpoint:   endpoint,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// Name returns the provider tag.
func (c *LinearClient) Name() string {
	return linearProvider
}

const linearIssueFields = `
fragment IssueFields on Issue {
  id
  identifier
  title
  description
  priority
  url
  createdAt
  updatedAt
  state { name type }
  assignee { id }
  labels { nodes { id name } }
  project { id name }
}`

const linearViewerQuery = `
query Viewer {
  viewer { id name displayName email active }
}`

const linearAssignedQuery = `
query AssignedIssues($userId: String!, $first: Int!, $after: String) {
  user(id: $userId) {
    assignedIssues(first: $first, after: $after) {
      nodes { ...IssueFields }
      pageInfo { hasNextPage endCursor }
    }
  }
}` + linearIssueFields

const linearSearchQuery = `
query SearchIssues($filter: IssueFilter, $first: Int!, $after: String) {
  issues(filter: $filter, first: $first, after: $after) {
    nodes { ...IssueFields }
    pageInfo { hasNextPage endCursor }
  }
}` + linearIssueFields

const linearIssueQuery = `
query Issue($id: String!) {
  issue(id: $id) { ...IssueFields }
}` + linearIssueFields

const linearOrganizationQuery = `
query Organization {
  organization { id name urlKey }
}`

const linearTeamsQuery = `
query Teams($first: Int!, $after: String) {
  teams(first: $first, after: $after) {
    nodes { id name key }
    pageInfo { hasNextPage endCursor }
  }
}`

const linearCreateMutation = `
mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue { ...IssueFields }
  }
}` + linearIssueFields

// Wire shapes. These never leave this file.

type linearPageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

func (p linearPageInfo) next() string {
	if !p.HasNextPage {
		return ""
	}
	return p.EndCursor
}

type linearUser struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
}

type linearIssue struct {
	ID          string    `json:"id"`
	Identifier  string    `json:"identifier"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Priority    float64   `json:"priority"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	State       *struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
	Assignee *struct {
		ID string `json:"id"`
	} `json:"assignee"`
	Labels struct {
		Nodes []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
	Project *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"project"`
}

type linearIssueConnection struct {
	Nodes    []linearIssue  `json:"nodes"`
	PageInfo linearPageInfo `json:"pageInfo"`
}

type linearTeam struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code                   string `json:"code"`
		UserPresentableMessage string `json:"userPresentableMessage"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// CurrentUser returns the account that owns the API key.
func (c *LinearClient) CurrentUser(ctx context.Context) (*domain.User, error) {
	var out struct {
		Viewer *linearUser `json:"viewer"`
	}
	if err := c.do(ctx, linearViewerQuery, nil, &out); err != nil {
		return nil, err
	}
	if out.Viewer == nil {
		return nil, domain.NewAuthError(linearProvider, "no viewer for api key", nil)
	}
	return toLinearDomainUser(out.Viewer), nil
}

// AssignedTickets returns every issue assigned to userID.
func (c *LinearClient) AssignedTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user id is required")
	}

	issues, err := drainPages(ctx, linearProvider, func(ctx context.Context, cursor string) ([]linearIssue, string, error) {
		var out struct {
			User *struct {
				AssignedIssues linearIssueConnection `json:"assignedIssues"`
			} `json:"user"`
		}
		vars := map[string]interface{}{
			"userId": userID,
			"first":  linearPageSize,
			"after":  nullableCursor(cursor),
		}
		if err := c.do(ctx, linearAssignedQuery, vars, &out); err != nil {
			return nil, "", err
		}
		if out.User == nil {
			return nil, "", domain.NewNotFoundError(linearProvider, fmt.Sprintf("user %s not found", userID))
		}
		conn := out.User.AssignedIssues
		return conn.Nodes, conn.PageInfo.next(), nil
	})
	if err != nil {
		return nil, err
	}

	return toLinearDomainTickets(issues), nil
}

// SearchTickets returns up to criteria.Limit issues whose title or
// description contains the query.
func (c *LinearClient) SearchTickets(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Ticket, error) {
	limit := domain.ClampLimit(criteria.Limit)
	filter := linearSearchFilter(criteria)

	issues, err := collectPages(ctx, linearProvider, limit, func(ctx context.Context, cursor string) ([]linearIssue, string, error) {
		var out struct {
			Issues linearIssueConnection `json:"issues"`
		}
		vars := map[string]interface{}{
			"filter": filter,
			"first":  min(limit, 100),
			"after":  nullableCursor(cursor),
		}
		if err := c.do(ctx, linearSearchQuery, vars, &out); err != nil {
			return nil, "", err
		}
		return out.Issues.Nodes, out.Issues.PageInfo.next(), nil
	})
	if err != nil {
		return nil, err
	}

	return toLinearDomainTickets(issues), nil
}

// linearSearchFilter builds the IssueFilter variable for a search.
func linearSearchFilter(criteria domain.SearchCriteria) map[string]interface{} {
	filter := map[string]interface{}{}

	if q := strings.TrimSpace(criteria.Query); q != "" {
		filter["or"] = []map[string]interface{}{
			{"title": map[string]interface{}{"containsIgnoreCase": q}},
			{"description": map[string]interface{}{"containsIgnoreCase": q}},
		}
	}
	if criteria.AssigneeID != "" {
		filter["assignee"] = map[string]interface{}{"id": map[string]interface{}{"eq": criteria.AssigneeID}}
	}
	if types := linearStateTypes(criteria.Statuses); len(types) > 0 {
		filter["state"] = map[string]interface{}{"type": map[string]interface{}{"in": types}}
	}
	return filter
}

// linearStateTypes is the inverse of linearStatus.
func linearStateTypes(statuses []domain.Status) []string {
	var types []string
	for _, s := range statuses {
		switch s {
		case domain.StatusOpen:
			types = append(types, "backlog", "unstarted", "triage")
		case domain.StatusInProgress:
			types = append(types, "started")
		case domain.StatusDone:
			types = append(types, "completed")
		case domain.StatusCanceled:
			types = append(types, "canceled")
		}
	}
	return types
}

// TicketByID looks up an issue by identifier (ENG-123) or UUID.
func (c *LinearClient) TicketByID(ctx context.Context, id string) (*domain.Ticket, error) {
	id = strings.TrimSpace(id)
	if !linearIdentifierPattern.MatchString(id) && !uuidPattern.MatchString(id) {
		return nil, domain.NewValidationError("invalid Linear issue id %q: expected TEAM-123 or a UUID", id)
	}

	var out struct {
		Issue *linearIssue `json:"issue"`
	}
	if err := c.do(ctx, linearIssueQuery, map[string]interface{}{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.Issue == nil {
		return nil, domain.NewNotFoundError(linearProvider, fmt.Sprintf("issue %s not found", id))
	}

	ticket := toLinearDomainTicket(*out.Issue)
	return &ticket, nil
}

// Workspace returns the organization and all of its teams. Both requests
// run concurrently; the first failure cancels the other.
func (c *LinearClient) Workspace(ctx context.Context) (*domain.Workspace, error) {
	var (
		org struct {
			Organization *struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				URLKey string `json:"urlKey"`
			} `json:"organization"`
		}
		teams []domain.Team
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.do(gctx, linearOrganizationQuery, nil, &org)
	})
	g.Go(func() error {
		var err error
		teams, err = c.teams(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if org.Organization == nil {
		return nil, domain.NewUnavailableError(linearProvider, "", errors.New("organization missing from response"))
	}

	ws := &domain.Workspace{
		ID:    org.Organization.ID,
		Name:  org.Organization.Name,
		Teams: teams,
	}
	if org.Organization.URLKey != "" {
		ws.URL = "https://linear.app/" + org.Organization.URLKey
	}
	return ws, nil
}

func (c *LinearClient) teams(ctx context.Context) ([]domain.Team, error) {
	raw, err := drainPages(ctx, linearProvider, func(ctx context.Context, cursor string) ([]linearTeam, string, error) {
		var out struct {
			Teams struct {
				Nodes    []linearTeam   `json:"nodes"`
				PageInfo linearPageInfo `json:"pageInfo"`
			} `json:"teams"`
		}
		vars := map[string]interface{}{"first": linearPageSize, "after": nullableCursor(cursor)}
		if err := c.do(ctx, linearTeamsQuery, vars, &out); err != nil {
			return nil, "", err
		}
		return out.Teams.Nodes, out.Teams.PageInfo.next(), nil
	})
	if err != nil {
		return nil, err
	}

	teams := make([]domain.Team, 0, len(raw))
	for _, t := range raw {
		teams = append(teams, domain.Team{ID: t.ID, Name: t.Name, Key: t.Key})
	}
	return teams, nil
}

// CreateTicket creates an issue. The team is taken from the draft (by id,
// key or name) or, when the workspace has exactly one team, defaulted.
func (c *LinearClient) CreateTicket(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	teamID, err := c.resolveTeam(ctx, draft.TeamID)
	if err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"title":  strings.TrimSpace(draft.Title),
		"teamId": teamID,
	}
	if draft.Description != "" {
		input["description"] = draft.Description
	}
	if draft.ProjectID != "" {
		input["projectId"] = draft.ProjectID
	}
	if len(draft.LabelIDs) > 0 {
		input["labelIds"] = draft.LabelIDs
	}
	if draft.Priority != "" {
		input["priority"] = draft.Priority.Level()
	}

	var out struct {
		IssueCreate struct {
			Success bool         `json:"success"`
			Issue   *linearIssue `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, linearCreateMutation, map[string]interface{}{"input": input}, &out); err != nil {
		return nil, err
	}
	if !out.IssueCreate.Success || out.IssueCreate.Issue == nil {
		return nil, domain.NewUnavailableError(linearProvider, "", errors.New("issueCreate reported failure"))
	}

	ticket := toLinearDomainTicket(*out.IssueCreate.Issue)
	return &ticket, nil
}

func (c *LinearClient) resolveTeam(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if uuidPattern.MatchString(ref) {
		return ref, nil
	}

	teams, err := c.teams(ctx)
	if err != nil {
		return "", err
	}

	if ref == "" {
		if len(teams) == 1 {
			return teams[0].ID, nil
		}
		return "", domain.NewValidationError("team_id is required: workspace has %d teams", len(teams))
	}

	for _, t := range teams {
		if strings.EqualFold(t.Key, ref) || strings.EqualFold(t.Name, ref) {
			return t.ID, nil
		}
	}
	return "", domain.NewValidationError("unknown team %q", ref)
}

// do executes one GraphQL call under the per-call timeout and decodes data
// into out. Every failure is returned as a *domain.TrackerError.
func (c *LinearClient) do(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewUnavailableError(linearProvider, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewUnavailableError(linearProvider, "", err)
	}

	var envelope graphQLResponse
	decodeErr := json.Unmarshal(raw, &envelope)

	// Linear reports most failures, rate limiting included, as GraphQL
	// errors, sometimes with a non-200 status.
	if decodeErr == nil && len(envelope.Errors) > 0 {
		// An unrecognized code on a non-200 response says less than the status does.
		if resp.StatusCode != http.StatusOK && linearKindForCode(envelope.Errors[0].Extensions.Code) == domain.KindUnavailable {
			return mapLinearStatus(resp, string(raw))
		}
		return mapLinearError(envelope.Errors[0], resp)
	}
	if resp.StatusCode != http.StatusOK {
		return mapLinearStatus(resp, string(raw))
	}
	if decodeErr != nil {
		return domain.NewUnavailableError(linearProvider, "", fmt.Errorf("failed to decode response: %w", decodeErr))
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return domain.NewUnavailableError(linearProvider, "", fmt.Errorf("failed to decode data: %w", err))
	}
	return nil
}

// mapLinearError maps a GraphQL error to a canonical kind.
func mapLinearError(gqlErr graphQLError, resp *http.Response) error {
	code := gqlErr.Extensions.Code
	msg := gqlErr.Extensions.UserPresentableMessage
	if msg == "" {
		msg = gqlErr.Message
	}

	switch linearKindForCode(code) {
	case domain.KindAuth:
		return &domain.TrackerError{Kind: domain.KindAuth, Provider: linearProvider, Message: msg, BackendCode: code}
	case domain.KindRateLimit:
		te := domain.NewRateLimitError(linearProvider, retryAfter(resp), nil)
		te.BackendCode = code
		return te
	case domain.KindValidation:
		return &domain.TrackerError{Kind: domain.KindValidation, Provider: linearProvider, Message: msg, BackendCode: code}
	case domain.KindNotFound:
		return &domain.TrackerError{Kind: domain.KindNotFound, Provider: linearProvider, Message: msg, BackendCode: code}
	default:
		return domain.NewUnavailableError(linearProvider, code, errors.New(msg))
	}
}

// linearKindForCode is total: every code, known or not, yields a kind.
func linearKindForCode(code string) domain.Kind {
	switch strings.ToUpper(code) {
	case "AUTHENTICATION_ERROR", "FORBIDDEN", "UNAUTHENTICATED":
		return domain.KindAuth
	case "RATELIMITED", "RATE_LIMITED":
		return domain.KindRateLimit
	case "INVALID_INPUT", "BAD_USER_INPUT", "GRAPHQL_VALIDATION_FAILED":
		return domain.KindValidation
	case "ENTITY_NOT_FOUND", "NOT_FOUND":
		return domain.KindNotFound
	default:
		return domain.KindUnavailable
	}
}

// mapLinearStatus maps a non-200 response by its HTTP status.
func mapLinearStatus(resp *http.Response, body string) error {
	code := strconv.Itoa(resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &domain.TrackerError{Kind: domain.KindAuth, Provider: linearProvider, Message: "authentication failed", BackendCode: code}
	case resp.StatusCode == http.StatusTooManyRequests:
		te := domain.NewRateLimitError(linearProvider, retryAfter(resp), nil)
		te.BackendCode = code
		return te
	default:
		return domain.NewUnavailableError(linearProvider, code, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	}
}

// retryAfter parses the Retry-After header in seconds.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func nullableCursor(cursor string) interface{} {
	if cursor == "" {
		return nil
	}
	return cursor
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func toLinearDomainUser(u *linearUser) *domain.User {
	name := u.Name
	if name == "" {
		name = u.DisplayName
	}
	return &domain.User{ID: u.ID, Name: name, Email: u.Email, Active: u.Active}
}

func toLinearDomainTickets(issues []linearIssue) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, len(issues))
	for _, issue := range issues {
		tickets = append(tickets, toLinearDomainTicket(issue))
	}
	return tickets
}

func toLinearDomainTicket(issue linearIssue) domain.Ticket {
	ticket := domain.Ticket{
		ID:        issue.Identifier,
		NodeID:    issue.ID,
		Provider:  linearProvider,
		Title:     issue.Title,
		Status:    domain.StatusOther,
		Priority:  domain.PriorityFromLevel(int(issue.Priority)),
		Labels:    make([]domain.Label, 0, len(issue.Labels.Nodes)),
		CreatedAt: issue.CreatedAt.UTC(),
		UpdatedAt: issue.UpdatedAt.UTC(),
		URL:       issue.URL,
	}
	if ticket.ID == "" {
		ticket.ID = issue.ID
	}
	if issue.Description != nil {
		ticket.Description = *issue.Description
	}
	if issue.State != nil {
		ticket.Status = linearStatus(issue.State.Type)
		ticket.StatusName = issue.State.Name
	}
	if issue.Assignee != nil {
		ticket.AssigneeID = issue.Assignee.ID
	}
	for _, l := range issue.Labels.Nodes {
		ticket.Labels = append(ticket.Labels, domain.Label{ID: l.ID, Name: l.Name})
	}
	if issue.Project != nil {
		ticket.Project = &domain.Project{ID: issue.Project.ID, Name: issue.Project.Name}
	}
	return ticket
}

// linearStatus maps a workflow state type to a Status.
func linearStatus(stateType string) domain.Status {
	switch stateType {
	case "backlog", "unstarted", "triage":
		return domain.StatusOpen
	case "started":
		return domain.StatusInProgress
	case "completed":
		return domain.StatusDone
	case "canceled":
		return domain.StatusCanceled
	default:
		return domain.StatusOther
	}
}
