package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// FakeProvider plays the identity provider: the consent page, the users
// API and the revocation endpoint.
type FakeProvider struct {
	*httptest.Server

	ClientID    string
	AccessToken string

	// Deny makes the consent page answer access_denied
	Deny bool

	mu             sync.Mutex
	authorizeQuery url.Values
	userCalls      []http.Header
	revoked        []url.Values
}

// NewFakeProvider starts a provider that issues accessToken to clientID
func NewFakeProvider(clientID, accessToken string) *FakeProvider {
	p := &FakeProvider{ClientID: clientID, AccessToken: accessToken}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/authorize", p.authorize)
	mux.HandleFunc("POST /oauth2/revoke", p.revoke)
	mux.HandleFunc("GET /helix/users", p.users)
	p.Server = httptest.NewServer(mux)
	return p
}

func (p *FakeProvider) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p.mu.Lock()
	p.authorizeQuery = q
	p.mu.Unlock()

	if q.Get("client_id") != p.ClientID || q.Get("response_type") != "token" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	fragment := url.Values{}
	fragment.Set("state", q.Get("state"))
	if p.Deny {
		fragment.Set("error", "access_denied")
		fragment.Set("error_description", "The user denied you access")
	} else {
		fragment.Set("access_token", p.AccessToken)
		fragment.Set("scope", q.Get("scope"))
		fragment.Set("token_type", "bearer")
	}
	http.Redirect(w, r, q.Get("redirect_uri")+"#"+fragment.Encode(), http.StatusFound)
}

func (p *FakeProvider) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.revoked = append(p.revoked, r.PostForm)
	p.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (p *FakeProvider) users(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.userCalls = append(p.userCalls, r.Header.Clone())
	p.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+p.AccessToken {
		http.Error(w, `{"error":"Unauthorized","status":401,"message":"Invalid OAuth token"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": []map[string]any{{
			"id":                "42",
			"login":             "alice",
			"display_name":      "Alice",
			"email":             "alice@example.com",
			"profile_image_url": "https://static.example.com/alice.png",
		}},
	})
}

// AuthorizeQuery returns the query of the last consent page request
func (p *FakeProvider) AuthorizeQuery() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authorizeQuery
}

// UserCalls returns the headers of every users API request
func (p *FakeProvider) UserCalls() []http.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]http.Header(nil), p.userCalls...)
}

// Revoked returns the forms posted to the revocation endpoint
func (p *FakeProvider) Revoked() []url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]url.Values(nil), p.revoked...)
}

// AuthorizeURL is the consent page address
func (p *FakeProvider) AuthorizeURL() string {
	return strings.TrimSuffix(p.URL, "/") + "/oauth2/authorize"
}
