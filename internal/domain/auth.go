package domain

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// AuthType defines supported authentication methods.
type AuthType int

const (
	// BasicAuth uses username and API token (Jira).
	BasicAuth AuthType = iota
	// TokenAuth is a bearer token (GitHub). It is validated here and signed
	// by an oauth2 token source, not by NewAuthenticatedClient.
	TokenAuth
	// APIKeyAuth sends the key as the raw Authorization header (Linear).
	APIKeyAuth
)

// String returns the string representation of AuthType.
func (a AuthType) String() string {
	switch a {
	case BasicAuth:
		return "basic"
	case TokenAuth:
		return "token"
	case APIKeyAuth:
		return "apikey"
	default:
		return "unknown"
	}
}

// Credentials stores authentication information for a tracking backend.
type Credentials struct {
	Type     AuthType
	Username string // Used for basic auth
	Password string // Used for basic auth
	Token    string // Used for token and API key auth
}

// CredentialsFromConfig returns the credentials for the configured provider.
func CredentialsFromConfig(config *Config) (*Credentials, error) {
	var creds *Credentials
	switch config.Provider {
	case ProviderLinear:
		creds = &Credentials{Type: APIKeyAuth, Token: config.Linear.APIToken}
	case ProviderJira:
		creds = &Credentials{Type: BasicAuth, Username: config.Jira.Username, Password: config.Jira.Token}
	case ProviderGitHub:
		creds = &Credentials{Type: TokenAuth, Token: config.GitHub.Token}
	default:
		return nil, fmt.Errorf("no credentials for provider: %s", config.Provider)
	}

	if err := validateCredentials(creds); err != nil {
		return nil, fmt.Errorf("%s: %w", config.Provider, err)
	}
	return creds, nil
}

// NewAuthenticatedClient returns an HTTP client that signs every request
// with creds. A non-zero timeout bounds each request end to end.
func NewAuthenticatedClient(creds *Credentials, timeout time.Duration) (*http.Client, error) {
	if err := validateCredentials(creds); err != nil {
		return nil, err
	}
	if creds.Type == TokenAuth {
		return nil, fmt.Errorf("token credentials are signed by an oauth2 token source")
	}

	return &http.Client{
		Transport: &authenticatedTransport{
			base:        http.DefaultTransport,
			credentials: creds,
		},
		Timeout: timeout,
	}, nil
}

// validateCredentials validates a Credentials object.
func validateCredentials(creds *Credentials) error {
	if creds == nil {
		return fmt.Errorf("credentials cannot be nil")
	}

	switch creds.Type {
	case BasicAuth:
		if creds.Username == "" {
			return fmt.Errorf("username is required for basic authentication")
		}
		if creds.Password == "" {
			return fmt.Errorf("password is required for basic authentication")
		}
	case TokenAuth, APIKeyAuth:
		if creds.Token == "" {
			return fmt.Errorf("token is required for %s authentication", creds.Type)
		}
	default:
		return fmt.Errorf("invalid authentication type: %v", creds.Type)
	}

	return nil
}

// authenticatedTransport is an http.RoundTripper that adds authentication headers.
type authenticatedTransport struct {
	base        http.RoundTripper
	credentials *Credentials
}

// RoundTrip implements http.RoundTripper by adding authentication headers to requests.
func (t *authenticatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clonedReq := req.Clone(req.Context())

	switch t.credentials.Type {
	case BasicAuth:
		auth := t.credentials.Username + ":" + t.credentials.Password
		encodedAuth := base64.StdEncoding.EncodeToString([]byte(auth))
		clonedReq.Header.Set("Authorization", "Basic "+encodedAuth)
	case APIKeyAuth:
		// Linear personal API keys are sent without a scheme.
		clonedReq.Header.Set("Authorization", t.credentials.Token)
	}

	return t.base.RoundTrip(clonedReq)
}
