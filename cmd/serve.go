package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tracker-mcp-server/internal/application"
	"tracker-mcp-server/internal/domain"
	"tracker-mcp-server/internal/infrastructure"
	"tracker-mcp-server/internal/logging"
)

// serveCmd runs the MCP server. It is also what the root command runs.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tracker tools and resources over MCP",
	Long: `Serve tracker tools and resources to an MCP client.

The transport is stdio unless transport.type (or TRACKER_TRANSPORT) is
"http", in which case a streamable HTTP endpoint is exposed at /mcp.

Example:
  LINEAR_API_TOKEN=lin_api_... tracker-mcp-server serve
  tracker-mcp-server serve --provider github -c config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.Info("configuration loaded",
		"provider", config.Provider,
		"transport", config.Transport.Type,
		"request_timeout", config.RequestTimeout.String(),
		"token", logging.MaskSensitive(providerToken(config)))

	provider, err := infrastructure.NewProvider(config)
	if err != nil {
		return fmt.Errorf("failed to initialize %s provider: %w", config.Provider, err)
	}

	logger := logging.GetLogger()
	service := application.NewTicketService(provider)
	router := application.NewRequestRouter(domain.NewResponseMapper(), logger, application.NewTicketHandler(service))
	server := application.NewServer(router, config, logger, Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil && cmd.Context().Err() == nil {
		logging.Info("received shutdown signal")
	}
	return nil
}

// newService builds a TicketService from the resolved configuration for
// the one-shot diagnostic commands.
func newService(cmd *cobra.Command) (*application.TicketService, context.Context, context.CancelFunc, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	provider, err := infrastructure.NewProvider(config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize %s provider: %w", config.Provider, err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), config.RequestTimeout)
	return application.NewTicketService(provider), ctx, cancel, nil
}

// providerToken returns the secret of the selected provider, for masked logging.
func providerToken(config *domain.Config) string {
	switch config.Provider {
	case domain.ProviderLinear:
		return config.Linear.APIToken
	case domain.ProviderJira:
		return config.Jira.Token
	case domain.ProviderGitHub:
		return config.GitHub.Token
	default:
		return ""
	}
}
