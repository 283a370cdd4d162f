package infrastructure

import (
	"fmt"

	"tracker-mcp-server/internal/domain"
)

// NewProvider builds the TicketProvider selected by cfg.Provider. It is
// called once at startup; an unknown provider is a configuration error.
func NewProvider(cfg *domain.Config) (domain.TicketProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	creds, err := domain.CredentialsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case domain.ProviderLinear, domain.ProviderJira:
		// Per-call deadlines come from the request context, so the client
		// itself has no timeout.
		httpClient, err := domain.NewAuthenticatedClient(creds, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		if cfg.Provider == domain.ProviderLinear {
			return NewLinearClient(cfg.Linear.APIURL, httpClient, cfg.RequestTimeout), nil
		}
		client, err := NewJiraClient(cfg.Jira.URL, httpClient, cfg.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case domain.ProviderGitHub:
		client, err := NewGitHubClient(creds.Token, cfg.GitHub.Repository, cfg.GitHub.APIURL, cfg.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider '%s'", cfg.Provider)
	}
}
