package oauth

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
)

// ResponseTypeToken selects the implicit grant
const ResponseTypeToken = "token"

// AuthorizationRequest is built fresh for each sign-in attempt and never stored.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scopes       []string
	// ForceVerify makes the provider show its login/consent screen even when
	// the browser already holds a provider session, so the user can pick the
	// account explicitly.
	ForceVerify bool
	State       string
}

// NewAuthorizationRequest assembles an implicit-grant request for the given
// client. It has no side effects.
func NewAuthorizationRequest(clientID, redirectURI string, scopes []string, state string) *AuthorizationRequest {
	return &AuthorizationRequest{
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		ResponseType: ResponseTypeToken,
		Scopes:       append([]string(nil), scopes...),
		ForceVerify:  true,
		State:        state,
	}
}

// EncodedScope joins the scopes with spaces and escapes the result, using
// %20 rather than '+' for the separator.
func (r *AuthorizationRequest) EncodedScope() string {
	return escape(strings.Join(r.Scopes, " "))
}

// URL serializes the request against the provider's authorization endpoint.
// Parameters are emitted in a fixed order so the output is deterministic.
func (r *AuthorizationRequest) URL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("authorization endpoint must be an absolute URL: %s", endpoint)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("authorization endpoint must not carry a query or fragment: %s", endpoint)
	}

	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteString("?client_id=")
	b.WriteString(escape(r.ClientID))
	b.WriteString("&redirect_uri=")
	b.WriteString(escape(r.RedirectURI))
	b.WriteString("&response_type=")
	b.WriteString(escape(r.ResponseType))
	b.WriteString("&scope=")
	b.WriteString(r.EncodedScope())
	fmt.Fprintf(&b, "&force_verify=%t", r.ForceVerify)
	b.WriteString("&state=")
	b.WriteString(escape(r.State))
	return b.String(), nil
}

// StateMatches compares the state echoed by the provider with the one that
// was sent, in constant time. An empty expected state never matches.
func StateMatches(expected, returned string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(returned)) == 1
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
