package oauth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/streamauth/internal/ioutil"
	"github.com/dgellow/streamauth/internal/log"
)

// Revoker invalidates an access token at the provider
type Revoker interface {
	Revoke(ctx context.Context, token, clientID string) error
}

// HTTPRevoker posts to an RFC 7009 style revocation endpoint
type HTTPRevoker struct {
	endpoint   string
	httpClient *http.Client
}

var _ Revoker = (*HTTPRevoker)(nil)

// NewHTTPRevoker creates a revoker for endpoint. A nil client uses
// http.DefaultClient.
func NewHTTPRevoker(endpoint string, httpClient *http.Client) *HTTPRevoker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPRevoker{endpoint: endpoint, httpClient: httpClient}
}

// Revoke sends token and clientID as a form body. Any transport error or
// non-2xx status is reported as ErrRevocationFailed.
func (r *HTTPRevoker) Revoke(ctx context.Context, token, clientID string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("client_id", clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &revocationError{err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &revocationError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &revocationError{status: resp.StatusCode, body: ioutil.ErrorBody(resp.Body)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, ioutil.MaxErrorBody))

	log.LogDebugWithFields("oauth", "Token revoked", map[string]any{
		"endpoint": r.endpoint,
		"status":   resp.StatusCode,
	})
	return nil
}
