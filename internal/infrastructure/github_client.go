package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v41/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"tracker-mcp-server/internal/domain"
)

const githubProvider = domain.ProviderGitHub

// githubPageSize is the per_page requested from the search API.
const githubPageSize = 100

var (
	githubRefPattern   = regexp.MustCompile(`^(?:([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)#|#)?([0-9]+)$`)
	githubRepoURLParts = regexp.MustCompile(`/repos/([^/]+)/([^/]+)/?$`)
)

// GitHubClient implements domain.TicketProvider against GitHub issues.
// Pull requests are returned by the issues API too and are dropped.
type GitHubClient struct {
	client  *github.Client
	owner   string
	repo    string
	timeout time.Duration
}

// NewGitHubClient creates a GitHub client authenticated with a personal
// access token. repository is an optional owner/repo default and apiURL an
// optional GitHub Enterprise API root.
func NewGitHubClient(token, repository, apiURL string, timeout time.Duration) (*GitHubClient, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))

	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		parsedURL, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = parsedURL
		client.UploadURL = parsedURL
	}

	c := &GitHubClient{client: client, timeout: timeout}
	if c.timeout <= 0 {
		c.timeout = domain.DefaultRequestTimeout
	}
	if repository != "" {
		parts := strings.Split(repository, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid repository format: %s, expected format: owner/repo", repository)
		}
		c.owner, c.repo = parts[0], parts[1]
	}
	return c, nil
}

// Name returns the provider tag.
func (c *GitHubClient) Name() string {
	return githubProvider
}

// CurrentUser returns the user that owns the token. The login is the id.
func (c *GitHubClient) CurrentUser(ctx context.Context) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, resp, err := c.client.Users.Get(ctx, "")
	if err != nil {
		return nil, mapGitHubError(ctx, resp, err)
	}

	name := user.GetName()
	if name == "" {
		name = user.GetLogin()
	}
	return &domain.User{
		ID:     user.GetLogin(),
		Name:   name,
		Email:  user.GetEmail(),
		Active: user.GetSuspendedAt().IsZero(),
	}, nil
}

// AssignedTickets returns every issue assigned to the login userID, scoped to
// the default repository when one is configured.
func (c *GitHubClient) AssignedTickets(ctx context.Context, userID string) ([]domain.Ticket, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user id is required")
	}

	q := c.scope("is:issue assignee:" + githubQualifier(userID))
	issues, err := drainPages(ctx, githubProvider, c.searchPage(q, githubPageSize))
	if err != nil {
		return nil, err
	}
	return c.toDomainTickets(issues), nil
}

// SearchTickets runs a quoted full-text issue search.
func (c *GitHubClient) SearchTickets(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Ticket, error) {
	limit := domain.ClampLimit(criteria.Limit)

	issues, err := collectPages(ctx, githubProvider, limit, c.searchPage(c.buildSearchQuery(criteria), min(limit, githubPageSize)))
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

func (c *GitHubClient) buildSearchQuery(criteria domain.SearchCriteria) string {
	terms := []string{githubQuote(strings.TrimSpace(criteria.Query)), "is:issue"}
	if criteria.AssigneeID != "" {
		terms = append(terms, "assignee:"+githubQualifier(criteria.AssigneeID))
	}
	if state := githubStateQualifier(criteria.Statuses); state != "" {
		terms = append(terms, state)
	}
	return c.scope(strings.Join(terms, " "))
}

func (c *GitHubClient) scope(q string) string {
	if c.owner == "" {
		return q
	}
	return q + " repo:" + c.owner + "/" + c.repo
}

// searchPage adapts page-number pagination to a pageFetcher.
func (c *GitHubClient) searchPage(q string, perPage int) pageFetcher[*github.Issue] {
	return func(ctx context.Context, cursor string) ([]*github.Issue, string, error) {
		page := 1
		if cursor != "" {
			page, _ = strconv.Atoi(cursor)
		}

		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		result, resp, err := c.client.Search.Issues(ctx, q, &github.SearchOptions{
			Sort:        "updated",
			Order:       "desc",
			ListOptions: github.ListOptions{Page: page, PerPage: perPage},
		})
		if err != nil {
			return nil, "", mapGitHubError(ctx, resp, err)
		}

		var issues []*github.Issue
		for _, issue := range result.Issues {
			if issue.IsPullRequest() {
				continue
			}
			issues = append(issues, issue)
		}

		if resp == nil || resp.NextPage == 0 {
			return issues, "", nil
		}
		return issues, strconv.Itoa(resp.NextPage), nil
	}
}

// TicketByID accepts owner/repo#N, or #N and N against the default repository.
func (c *GitHubClient) TicketByID(ctx context.Context, id string) (*domain.Ticket, error) {
	owner, repo, number, err := c.parseRef(strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	issue, resp, err := c.client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, mapGitHubError(ctx, resp, err)
	}
	if issue.IsPullRequest() {
		return nil, domain.NewNotFoundError(githubProvider, fmt.Sprintf("%s/%s#%d is a pull request", owner, repo, number))
	}

	ticket := toGitHubDomainTicket(issue, owner, repo)
	return &ticket, nil
}

func (c *GitHubClient) parseRef(id string) (owner, repo string, number int, err error) {
	m := githubRefPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", 0, domain.NewValidationError("invalid GitHub issue reference %q: expected owner/repo#123", id)
	}
	owner, repo = m[1], m[2]
	if owner == "" {
		if c.owner == "" {
			return "", "", 0, domain.NewValidationError("issue reference %q needs owner/repo: no default repository configured", id)
		}
		owner, repo = c.owner, c.repo
	}
	number, convErr := strconv.Atoi(m[3])
	if convErr != nil || number <= 0 {
		return "", "", 0, domain.NewValidationError("invalid issue number in %q", id)
	}
	return owner, repo, number, nil
}

// Workspace reports the authenticated user with the teams they belong to.
func (c *GitHubClient) Workspace(ctx context.Context) (*domain.Workspace, error) {
	var (
		user  *github.User
		teams []domain.Team
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(gctx, c.timeout)
		defer cancel()
		u, resp, err := c.client.Users.Get(ctx, "")
		if err != nil {
			return mapGitHubError(ctx, resp, err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(gctx, c.timeout)
		defer cancel()
		ghTeams, resp, err := c.client.Teams.ListUserTeams(ctx, &github.ListOptions{PerPage: githubPageSize})
		if err != nil {
			mapped := mapGitHubError(ctx, resp, err)
			// Fine-grained tokens cannot read org membership.
			if domain.IsKind(mapped, domain.KindAuth) || domain.IsKind(mapped, domain.KindNotFound) {
				teams = []domain.Team{}
				return nil
			}
			return mapped
		}
		teams = make([]domain.Team, 0, len(ghTeams))
		for _, t := range ghTeams {
			key := t.GetSlug()
			if org := t.GetOrganization().GetLogin(); org != "" {
				key = org + "/" + key
			}
			teams = append(teams, domain.Team{ID: strconv.FormatInt(t.GetID(), 10), Name: t.GetName(), Key: key})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ws := &domain.Workspace{
		ID:    user.GetLogin(),
		Name:  user.GetLogin(),
		URL:   user.GetHTMLURL(),
		Teams: teams,
	}
	if c.owner != "" {
		ws.Name = c.owner + "/" + c.repo
	}
	return ws, nil
}

// CreateTicket opens an issue in the default repository.
func (c *GitHubClient) CreateTicket(ctx context.Context, draft domain.TicketDraft) (*domain.Ticket, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if c.owner == "" {
		return nil, domain.NewValidationError("creating GitHub issues requires GITHUB_REPOSITORY")
	}

	req := &github.IssueRequest{
		Title: github.String(strings.TrimSpace(draft.Title)),
	}
	if draft.Description != "" {
		req.Body = github.String(draft.Description)
	}
	labels := append([]string{}, draft.LabelIDs...)
	if draft.Priority != "" && draft.Priority != domain.PriorityNone {
		labels = append(labels, "priority: "+string(draft.Priority))
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	issue, resp, err := c.client.Issues.Create(ctx, c.owner, c.repo, req)
	if err != nil {
		return nil, mapGitHubError(ctx, resp, err)
	}

	ticket := toGitHubDomainTicket(issue, c.owner, c.repo)
	return &ticket, nil
}

// mapGitHubError maps a go-github failure to a canonical kind.
func mapGitHubError(ctx context.Context, resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait < 0 {
			wait = 0
		}
		te := domain.NewRateLimitError(githubProvider, wait, err)
		te.BackendCode = "rate_limit"
		return te
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		te := domain.NewRateLimitError(githubProvider, abuseErr.GetRetryAfter(), err)
		te.BackendCode = "secondary_rate_limit"
		return te
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		code := strconv.Itoa(status)
		switch kind := kindForStatus(status); kind {
		case domain.KindRateLimit:
			te := domain.NewRateLimitError(githubProvider, retryAfter(respErr.Response), err)
			te.BackendCode = code
			return te
		case domain.KindUnavailable:
			return domain.NewUnavailableError(githubProvider, code, err)
		default:
			msg := respErr.Message
			if msg == "" {
				msg = jiraMessage(kind)
			}
			return &domain.TrackerError{Kind: kind, Provider: githubProvider, Message: msg, BackendCode: code, Err: err}
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.NewUnavailableError(githubProvider, "", ctxErr)
	}
	code := ""
	if resp != nil && resp.Response != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	return domain.NewUnavailableError(githubProvider, code, err)
}

var githubQuoteEscaper = strings.NewReplacer(
	`"`, " ",
	`\`, " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// githubQuote renders s as one quoted search term. The search syntax has no
// escape for quotes inside a phrase, so they are replaced with spaces.
func githubQuote(s string) string {
	return `"` + strings.Join(strings.Fields(githubQuoteEscaper.Replace(s)), " ") + `"`
}

// githubQualifier strips anything that would end a qualifier value.
func githubQualifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '[', r == ']':
			return r
		default:
			return -1
		}
	}, s)
}

// githubStateQualifier narrows by state when every requested status maps to
// the same GitHub state.
func githubStateQualifier(statuses []domain.Status) string {
	open, closed := false, false
	for _, s := range statuses {
		switch s {
		case domain.StatusOpen, domain.StatusInProgress:
			open = true
		case domain.StatusDone, domain.StatusCanceled:
			closed = true
		}
	}
	switch {
	case open && !closed:
		return "is:open"
	case closed && !open:
		return "is:closed"
	default:
		return ""
	}
}

func githubStatus(state string) domain.Status {
	switch state {
	case "open":
		return domain.StatusOpen
	case "closed":
		return domain.StatusDone
	default:
		return domain.StatusOther
	}
}

// githubPriority reads a "priority: <level>" or "P0".."P3" label.
func githubPriority(labels []*github.Label) domain.Priority {
	for _, l := range labels {
		name := strings.ToLower(strings.TrimSpace(l.GetName()))
		if rest, ok := strings.CutPrefix(name, "priority:"); ok {
			if p, ok := domain.ParsePriority(strings.TrimSpace(rest)); ok {
				return p
			}
		}
		if len(name) == 2 && name[0] == 'p' && name[1] >= '0' && name[1] <= '3' {
			return domain.PriorityFromLevel(int(name[1]-'0') + 1)
		}
	}
	return domain.PriorityNone
}

func (c *GitHubClient) toDomainTickets(issues []*github.Issue) []domain.Ticket {
	tickets := make([]domain.Ticket, 0, len(issues))
	for _, issue := range issues {
		owner, repo := c.owner, c.repo
		if m := githubRepoURLParts.FindStringSubmatch(issue.GetRepositoryURL()); m != nil {
			owner, repo = m[1], m[2]
		}
		tickets = append(tickets, toGitHubDomainTicket(issue, owner, repo))
	}
	return tickets
}

func toGitHubDomainTicket(issue *github.Issue, owner, repo string) domain.Ticket {
	ticket := domain.Ticket{
		ID:          fmt.Sprintf("%s/%s#%d", owner, repo, issue.GetNumber()),
		NodeID:      issue.GetNodeID(),
		Provider:    githubProvider,
		Title:       issue.GetTitle(),
		Description: issue.GetBody(),
		Status:      githubStatus(issue.GetState()),
		StatusName:  issue.GetState(),
		Priority:    githubPriority(issue.Labels),
		Labels:      make([]domain.Label, 0, len(issue.Labels)),
		CreatedAt:   issue.GetCreatedAt().UTC(),
		UpdatedAt:   issue.GetUpdatedAt().UTC(),
		URL:         issue.GetHTMLURL(),
	}
	if issue.Assignee != nil {
		ticket.AssigneeID = issue.Assignee.GetLogin()
	}
	for _, l := range issue.Labels {
		ticket.Labels = append(ticket.Labels, domain.Label{ID: strconv.FormatInt(l.GetID(), 10), Name: l.GetName()})
	}
	if m := issue.Milestone; m != nil {
		ticket.Project = &domain.Project{ID: strconv.Itoa(m.GetNumber()), Name: m.GetTitle()}
	}
	return ticket
}
