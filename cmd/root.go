// Package cmd provides the command-line interface for the tracker MCP server.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tracker-mcp-server/internal/domain"
	"tracker-mcp-server/internal/logging"
)

// Version is set at build time with -ldflags "-X tracker-mcp-server/cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tracker-mcp-server",
	Short: "Expose an issue tracker to MCP clients",
	Long: `tracker-mcp-server bridges a Model Context Protocol client to an issue
tracking backend (Linear, Jira or GitHub Issues).

It publishes tools for reading the authenticated user, their assigned
tickets and the workspace, for full-text ticket search and for creating
tickets, plus read-only resources mirroring the same data.

Configuration comes from an optional YAML file overlaid by environment
variables (LINEAR_API_TOKEN, JIRA_URL, GITHUB_TOKEN and friends).

Run without a subcommand to serve over the configured transport.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add persistent flags that will be available to all commands
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringP("provider", "p", "", "Tracker backend: linear, jira or github")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(teamsCmd)
}

// loadConfig resolves the configuration for cmd. Flags take precedence
// over the environment, which takes precedence over the file.
func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	overrides := map[string]string{
		"provider":  "TRACKER_PROVIDER",
		"log-level": "LOG_LEVEL",
	}
	for flag, envVar := range overrides {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		value, err := cmd.Flags().GetString(flag)
		if err != nil {
			return nil, err
		}
		if err := os.Setenv(envVar, value); err != nil {
			return nil, fmt.Errorf("apply --%s: %w", flag, err)
		}
	}

	config, err := domain.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	logging.SetupLogger(os.Stderr, logging.LogLevel(config.Log.Level), config.Log.Format)
	return config, nil
}
