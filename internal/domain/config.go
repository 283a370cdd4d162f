package domain

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Supported providers.
const (
	ProviderLinear = "linear"
	ProviderJira   = "jira"
	ProviderGitHub = "github"
)

// Defaults applied after the file and the environment have been read.
const (
	DefaultLinearURL      = "https://api.linear.app/graphql"
	DefaultHTTPHost       = "localhost"
	DefaultHTTPPort       = 8080
	DefaultRequestTimeout = 30 * time.Second
)

// Config represents the server configuration.
// It is read from an optional YAML file and then overlaid with environment
// variables, so a token exported in the environment always wins.
type Config struct {
	Provider       string          `yaml:"provider" env:"TRACKER_PROVIDER"`
	RequestTimeout time.Duration   `yaml:"request_timeout" env:"TRACKER_REQUEST_TIMEOUT"`
	Transport      TransportConfig `yaml:"transport"`
	Log            LogConfig       `yaml:"log"`
	Linear         LinearConfig    `yaml:"linear"`
	Jira           JiraConfig      `yaml:"jira"`
	GitHub         GitHubConfig    `yaml:"github"`
}

// TransportConfig defines transport settings.
// Specifies whether to use stdio or HTTP transport.
type TransportConfig struct {
	Type string     `yaml:"type" env:"TRACKER_TRANSPORT"` // "stdio" or "http"
	HTTP HTTPConfig `yaml:"http,omitempty"`
}

// HTTPConfig defines HTTP transport settings.
// Only used when transport type is "http".
type HTTPConfig struct {
	Host string `yaml:"host" env:"TRACKER_HTTP_HOST"`
	Port int    `yaml:"port" env:"TRACKER_HTTP_PORT"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // "json" or "text"
}

// LinearConfig holds the Linear API key and endpoint.
type LinearConfig struct {
	APIToken string `yaml:"api_token" env:"LINEAR_API_TOKEN"`
	APIURL   string `yaml:"api_url" env:"LINEAR_API_URL"`
}

// JiraConfig holds Jira Cloud or Server credentials.
type JiraConfig struct {
	URL      string `yaml:"url" env:"JIRA_URL"`
	Username string `yaml:"username" env:"JIRA_USERNAME"`
	Token    string `yaml:"token" env:"JIRA_TOKEN"`
}

// GitHubConfig holds GitHub credentials and the optional default repository
// used to scope searches and to create issues.
type GitHubConfig struct {
	Token      string `yaml:"token" env:"GITHUB_TOKEN"`
	Repository string `yaml:"repository" env:"GITHUB_REPOSITORY"` // owner/repo
	APIURL     string `yaml:"api_url" env:"GITHUB_API_URL"`
}

// LoadConfig reads configuration from path (if non-empty), overlays the
// environment, applies defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("invalid YAML syntax in configuration file: %w", err)
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderLinear
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Transport.Type == "" {
		c.Transport.Type = "stdio"
	}
	if c.Transport.HTTP.Host == "" {
		c.Transport.HTTP.Host = DefaultHTTPHost
	}
	if c.Transport.HTTP.Port == 0 {
		c.Transport.HTTP.Port = DefaultHTTPPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Linear.APIURL == "" {
		c.Linear.APIURL = DefaultLinearURL
	}
}

// Validate checks the configuration for completeness and correctness.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateTransport(); err != nil {
		errs = append(errs, err.Error())
	}

	switch c.Provider {
	case ProviderLinear:
		errs = append(errs, c.Linear.validate()...)
	case ProviderJira:
		errs = append(errs, c.Jira.validate()...)
	case ProviderGitHub:
		errs = append(errs, c.GitHub.validate()...)
	default:
		errs = append(errs, fmt.Sprintf("unknown provider '%s': must be one of linear, jira, github", c.Provider))
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'json' or 'text'", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New("validation errors: " + strings.Join(errs, "; "))
	}

	return nil
}

// validateTransport validates the transport configuration.
func (c *Config) validateTransport() error {
	var errs []string

	if c.Transport.Type != "stdio" && c.Transport.Type != "http" {
		errs = append(errs, fmt.Sprintf("invalid transport type '%s': must be 'stdio' or 'http'", c.Transport.Type))
	}

	if c.Transport.Type == "http" {
		if c.Transport.HTTP.Host == "" {
			errs = append(errs, "HTTP host is required when transport type is 'http'")
		}
		if c.Transport.HTTP.Port <= 0 || c.Transport.HTTP.Port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid HTTP port %d: must be between 1 and 65535", c.Transport.HTTP.Port))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (lc LinearConfig) validate() []string {
	var errs []string
	if lc.APIToken == "" {
		errs = append(errs, "LINEAR_API_TOKEN is required for the linear provider")
	}
	if msg := validateBaseURL("Linear api_url", lc.APIURL); msg != "" {
		errs = append(errs, msg)
	}
	return errs
}

func (jc JiraConfig) validate() []string {
	var errs []string
	if jc.URL == "" {
		errs = append(errs, "JIRA_URL is required for the jira provider")
	} else if msg := validateBaseURL("Jira url", jc.URL); msg != "" {
		errs = append(errs, msg)
	}
	if jc.Username == "" {
		errs = append(errs, "JIRA_USERNAME is required for the jira provider")
	}
	if jc.Token == "" {
		errs = append(errs, "JIRA_TOKEN is required for the jira provider")
	}
	return errs
}

func (gc GitHubConfig) validate() []string {
	var errs []string
	if gc.Token == "" {
		errs = append(errs, "GITHUB_TOKEN is required for the github provider")
	}
	if gc.Repository != "" {
		parts := strings.Split(gc.Repository, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			errs = append(errs, fmt.Sprintf("GitHub repository '%s' must be in owner/repo form", gc.Repository))
		}
	}
	if gc.APIURL != "" {
		if msg := validateBaseURL("GitHub api_url", gc.APIURL); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

// validateBaseURL returns a message when raw is not an absolute http(s) URL.
func validateBaseURL(name, raw string) string {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("%s is invalid: %v", name, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Sprintf("%s must use http or https scheme", name)
	}
	if parsedURL.Host == "" {
		return fmt.Sprintf("%s must include a host", name)
	}
	return ""
}
