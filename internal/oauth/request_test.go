package oauth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twitchAuthorize = "https://id.twitch.tv/oauth2/authorize"

var testScopes = []string{"openid", "user:read:email", "user:read:follows"}

func TestNewAuthorizationRequest(t *testing.T) {
	scopes := []string{"openid", "user:read:email"}
	req := NewAuthorizationRequest("cid", "http://127.0.0.1:3000/callback", scopes, "nonce")

	assert.Equal(t, "cid", req.ClientID)
	assert.Equal(t, "http://127.0.0.1:3000/callback", req.RedirectURI)
	assert.Equal(t, ResponseTypeToken, req.ResponseType)
	assert.True(t, req.ForceVerify)
	assert.Equal(t, "nonce", req.State)
	assert.Equal(t, scopes, req.Scopes)

	// The request owns its scope slice
	scopes[0] = "changed"
	assert.Equal(t, "openid", req.Scopes[0])
}

func TestAuthorizationRequest_URL(t *testing.T) {
	req := NewAuthorizationRequest("cid", "http://127.0.0.1:3000/callback", testScopes, "abc")

	got, err := req.URL(twitchAuthorize)
	require.NoError(t, err)

	want := twitchAuthorize +
		"?client_id=cid" +
		"&redirect_uri=http%3A%2F%2F127.0.0.1%3A3000%2Fcallback" +
		"&response_type=token" +
		"&scope=openid%20user%3Aread%3Aemail%20user%3Aread%3Afollows" +
		"&force_verify=true" +
		"&state=abc"
	assert.Equal(t, want, got)
}

func TestAuthorizationRequest_URL_RoundTrips(t *testing.T) {
	req := NewAuthorizationRequest("client id&x=1", "myapp://auth?x=y", testScopes, "s+t/=")

	got, err := req.URL(twitchAuthorize)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client id&x=1", q.Get("client_id"))
	assert.Equal(t, "myapp://auth?x=y", q.Get("redirect_uri"))
	assert.Equal(t, "token", q.Get("response_type"))
	assert.Equal(t, "openid user:read:email user:read:follows", q.Get("scope"))
	assert.Equal(t, "true", q.Get("force_verify"))
	assert.Equal(t, "s+t/=", q.Get("state"))
	assert.Len(t, q, 6)
}

func TestAuthorizationRequest_URL_Deterministic(t *testing.T) {
	req := NewAuthorizationRequest("cid", "http://localhost/cb", testScopes, "n")
	a, err := req.URL(twitchAuthorize)
	require.NoError(t, err)
	b, err := req.URL(twitchAuthorize)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAuthorizationRequest_URL_InvalidEndpoint(t *testing.T) {
	req := NewAuthorizationRequest("cid", "http://localhost/cb", testScopes, "n")

	tests := []struct {
		name     string
		endpoint string
	}{
		{name: "relative", endpoint: "/oauth2/authorize"},
		{name: "with_query", endpoint: twitchAuthorize + "?foo=bar"},
		{name: "with_fragment", endpoint: twitchAuthorize + "#x"},
		{name: "unparseable", endpoint: "://bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := req.URL(tt.endpoint)
			assert.Error(t, err)
		})
	}
}

func TestEncodedScope(t *testing.T) {
	req := NewAuthorizationRequest("cid", "", []string{"a b", "c"}, "")
	assert.Equal(t, "a%20b%20c", req.EncodedScope())

	empty := NewAuthorizationRequest("cid", "", nil, "")
	assert.Equal(t, "", empty.EncodedScope())
}

func TestStateMatches(t *testing.T) {
	assert.True(t, StateMatches("abc", "abc"))
	assert.False(t, StateMatches("abc", "abd"))
	assert.False(t, StateMatches("abc", "ab"))
	assert.False(t, StateMatches("abc", ""))
	assert.False(t, StateMatches("", ""))
}
