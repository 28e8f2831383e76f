// Package drive is the storage client for the Google Drive REST API.
//
// A single Client is shared by every upload. It reads the bearer token from the auth
// session on each request and refuses to make network calls while the session is empty.
package drive

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/text/unicode/norm"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// FolderMimeType marks Drive folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// DefaultEnvironment tags uploads made outside a named deployment.
const DefaultEnvironment = "local"

// TokenSource is the view of the auth session the client needs.
type TokenSource interface {
	oauth2.TokenSource
	IsAuthenticated() bool
}

// Client wraps the Drive v3 service.
type Client struct {
	svc          *drivev3.Service
	tokens       TokenSource
	environment  string
	sharedDrives bool
}

type clientOptions struct {
	endpoint     string
	httpClient   *http.Client
	environment  string
	sharedDrives bool
}

// Option configures a Client.
type Option func(*clientOptions)

// WithEndpoint points the client at a different API root, e.g. a local fake.
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) {
		o.endpoint = endpoint
	}
}

// WithHTTPClient supplies the base HTTP client. The bearer token is layered on its transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithEnvironment sets the deployment tag appended to uploaded file names.
func WithEnvironment(tag string) Option {
	return func(o *clientOptions) {
		o.environment = tag
	}
}

// WithSharedDrives enables the flags needed when the destination folder lives on a shared drive.
func WithSharedDrives(enabled bool) Option {
	return func(o *clientOptions) {
		o.sharedDrives = enabled
	}
}

// NewClient creates a Drive client authorized by tokens.
func NewClient(ctx context.Context, tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	o := clientOptions{environment: DefaultEnvironment}
	for _, opt := range opts {
		opt(&o)
	}

	base := http.DefaultTransport
	hc := &http.Client{}
	if o.httpClient != nil {
		if o.httpClient.Transport != nil {
			base = o.httpClient.Transport
		}
		hc.Timeout = o.httpClient.Timeout
	}
	hc.Transport = &oauth2.Transport{Source: tokens, Base: base}

	svcOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := drivev3.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		svc:          svc,
		tokens:       tokens,
		environment:  o.environment,
		sharedDrives: o.sharedDrives,
	}, nil
}

// Environment returns the deployment tag used for display names.
func (c *Client) Environment() string {
	return c.environment
}

// DisplayName normalizes name and appends the environment tag, e.g. "sketch.jpg [vercel]".
func DisplayName(name, environment string) string {
	name = norm.NFC.String(name)
	if environment == "" {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, environment)
}

func (c *Client) requireAuth() error {
	if !c.tokens.IsAuthenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// escapeQuery quotes a value for use inside a Drive query string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
