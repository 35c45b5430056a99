package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

// StateOf extracts the state parameter from an authorization URL
func StateOf(authURL string) string {
	u, err := url.Parse(authURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("state")
}

// FakeAPI is an httptest server that answers GET /users like the provider's
// API and records the headers of the last request.
type FakeAPI struct {
	*httptest.Server

	Status int
	Body   string

	lastAuthorization atomic.Value // string
	lastClientID      atomic.Value // string
	calls             atomic.Int32
}

// NewFakeAPI starts a fake API answering with body and status 200
func NewFakeAPI(t *testing.T, body string) *FakeAPI {
	t.Helper()
	api := &FakeAPI{Status: http.StatusOK, Body: body}
	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.Close)
	return api
}

func (a *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.calls.Add(1)
	a.lastAuthorization.Store(r.Header.Get("Authorization"))
	a.lastClientID.Store(r.Header.Get("Client-Id"))

	if r.URL.Path != "/users" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(a.Status)
	_, _ = w.Write([]byte(a.Body))
}

// LastAuthorization returns the Authorization header of the last request
func (a *FakeAPI) LastAuthorization() string {
	v, _ := a.lastAuthorization.Load().(string)
	return v
}

// LastClientID returns the Client-Id header of the last request
func (a *FakeAPI) LastClientID() string {
	v, _ := a.lastClientID.Load().(string)
	return v
}

// Calls returns how many requests the server has seen
func (a *FakeAPI) Calls() int {
	return int(a.calls.Load())
}
