package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v72/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const userAgent = "appsec-orgbot"

// AuthConfig selects how the bot authenticates. A complete GitHub App
// configuration wins over a token.
type AuthConfig struct {
	Token          string
	AppID          int64
	InstallationID int64
	PrivateKey     []byte
}

func (c AuthConfig) hasApp() bool {
	return c.AppID != 0 && c.InstallationID != 0 && len(c.PrivateKey) > 0
}

// Client is the authenticated GitHub collaborator. REST calls go through
// go-github, team search and identity lookup through the GraphQL API.
type Client struct {
	rest    *gh.Client
	graphql *githubv4.Client
}

// NewClient builds an authenticated client. With App credentials the
// installation transport refreshes its token on its own; otherwise the
// static token is sent as a bearer token.
func NewClient(ctx context.Context, cfg AuthConfig) (*Client, error) {
	httpClient, err := newHTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newClient(httpClient), nil
}

func newHTTPClient(ctx context.Context, cfg AuthConfig) (*http.Client, error) {
	if cfg.hasApp() {
		// build transport that handles App JWT + installation token
		itr, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, cfg.InstallationID, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub installation transport: %w", err)
		}
		return &http.Client{Transport: itr}, nil
	}
	if cfg.Token != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})), nil
	}
	return nil, errors.New("missing GitHub credentials: set GITHUB_TOKEN or the GITHUB_APP_* variables")
}

func newClient(httpClient *http.Client) *Client {
	rest := gh.NewClient(httpClient)
	rest.UserAgent = userAgent
	return &Client{
		rest:    rest,
		graphql: githubv4.NewClient(httpClient),
	}
}

// NewClientWithURLs points both APIs at custom endpoints, as used by GitHub
// Enterprise Server and by tests.
func NewClientWithURLs(httpClient *http.Client, restURL, graphqlURL string) (*Client, error) {
	if !strings.HasSuffix(restURL, "/") {
		restURL += "/"
	}
	baseURL, err := url.Parse(restURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REST base URL %q: %w", restURL, err)
	}

	rest := gh.NewClient(httpClient)
	rest.UserAgent = userAgent
	rest.BaseURL = baseURL

	return &Client{
		rest:    rest,
		graphql: githubv4.NewEnterpriseClient(graphqlURL, httpClient),
	}, nil
}
