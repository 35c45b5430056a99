package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dgellow/streamauth/internal/crypto"
	"github.com/dgellow/streamauth/internal/ioutil"
	"github.com/dgellow/streamauth/internal/log"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds each profile request
	DefaultTimeout = 30 * time.Second

	// HeaderClientID carries the application's client identifier on every call
	HeaderClientID = "Client-Id"

	maxResponseBytes = 1 << 20
)

var (
	// ErrNoCredential is returned when a request needs a bearer token and none is installed
	ErrNoCredential = errors.New("no bearer credential installed")

	// ErrNoUser is returned when the users endpoint answers with an empty list
	ErrNoUser = errors.New("provider returned no user")
)

// Client is an HTTP client bound to one provider application. It always
// sends Client-Id and, once a bearer token is installed, Authorization.
// Each Client owns its header set; derive a separate one with WithBearer
// instead of mutating a shared instance.
type Client struct {
	apiBaseURL string
	clientID   string
	transport  http.RoundTripper
	timeout    time.Duration

	mu    sync.RWMutex
	token *oauth2.Token
}

// Option configures a Client
type Option func(*Client)

// WithTransport sets the underlying round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client for the API at apiBaseURL. The client ID is
// fixed for the life of the client.
func NewClient(apiBaseURL, clientID string, opts ...Option) *Client {
	c := &Client{
		apiBaseURL: apiBaseURL,
		clientID:   clientID,
		transport:  http.DefaultTransport,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientID returns the application identifier sent with every request
func (c *Client) ClientID() string {
	return c.clientID
}

// SetBearer installs accessToken as the Authorization credential
func (c *Client) SetBearer(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
}

// ClearBearer removes the Authorization credential. Safe to call when none is set.
func (c *Client) ClearBearer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

// HasBearer reports whether an Authorization credential is installed
func (c *Client) HasBearer() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil
}

// WithBearer returns a new Client sharing this client's configuration but
// carrying accessToken. The receiver is left untouched.
func (c *Client) WithBearer(accessToken string) *Client {
	derived := &Client{
		apiBaseURL: c.apiBaseURL,
		clientID:   c.clientID,
		transport:  c.transport,
		timeout:    c.timeout,
	}
	derived.SetBearer(accessToken)
	return derived
}

// HTTPClient returns an *http.Client that applies this client's headers.
// The bearer token is captured at call time.
func (c *Client) HTTPClient() *http.Client {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	var rt http.RoundTripper = &headerTransport{
		clientID: c.clientID,
		base:     c.transport,
	}
	if token != nil {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   rt,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

// FetchUser returns the user that owns the installed bearer token. The
// first element of the users list is taken as the authenticated user.
func (c *Client) FetchUser(ctx context.Context) (*UserProfile, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == nil {
		return nil, ErrNoCredential
	}

	endpoint, err := url.JoinPath(c.apiBaseURL, "users")
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	log.LogTraceWithFields("idp", "Fetching user", map[string]any{
		"url":   endpoint,
		"token": crypto.Fingerprint(token.AccessToken),
	})

	resp, err := c.HTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if body := ioutil.ErrorBody(resp.Body); body != "" {
			return nil, fmt.Errorf("failed to get user: status %d: %s", resp.StatusCode, body)
		}
		return nil, fmt.Errorf("failed to get user: status %d", resp.StatusCode)
	}

	var users usersResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if len(users.Data) == 0 {
		return nil, ErrNoUser
	}

	return users.Data[0].profile(), nil
}

// headerTransport adds the provider's application headers
type headerTransport struct {
	clientID string
	base     http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(HeaderClientID, t.clientID)
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(r)
}
