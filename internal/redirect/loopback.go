package redirect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync/atomic"
	"time"

	"github.com/dgellow/streamauth/internal/log"
	"github.com/dgellow/streamauth/internal/oauth"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Opener shows the authorization page to the user
type Opener func(authURL string) error

// PrintOpener only prints authURL to w for the user to open by hand
func PrintOpener(w io.Writer) Opener {
	return func(authURL string) error {
		_, err := fmt.Fprintf(w, "Open the following URL to sign in:\n\n  %s\n\n", authURL)
		return err
	}
}

// BrowserOpener prints authURL to w and tries to open it in the default
// browser. Failing to launch a browser is not an error: the user can copy
// the printed URL.
func BrowserOpener(w io.Writer) Opener {
	show := PrintOpener(w)
	return func(authURL string) error {
		if err := show(authURL); err != nil {
			return err
		}
		if err := browser.OpenURL(authURL); err != nil {
			log.LogDebugWithFields("redirect", "Could not launch browser", map[string]any{
				"error": err.Error(),
			})
		}
		return nil
	}
}

// Loopback receives the provider's redirect on a local HTTP listener. The
// implicit grant returns its parameters in the URL fragment, which browsers
// never send to servers, so the callback path serves a small page that
// replays the fragment as a query string on "<callback>/complete".
type Loopback struct {
	addr         string
	callbackPath string
	opener       Opener
}

// LoopbackOption configures a Loopback
type LoopbackOption func(*Loopback)

// WithOpener replaces the default browser opener
func WithOpener(o Opener) LoopbackOption {
	return func(l *Loopback) {
		l.opener = o
	}
}

// NewLoopback listens on addr for redirects to callbackPath
func NewLoopback(addr, callbackPath string, opts ...LoopbackOption) *Loopback {
	if callbackPath == "" {
		callbackPath = "/"
	}
	l := &Loopback{
		addr:         addr,
		callbackPath: callbackPath,
		opener:       BrowserOpener(os.Stderr),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLoopbackForRedirectURI derives the callback path from redirectURI
func NewLoopbackForRedirectURI(addr, redirectURI string, opts ...LoopbackOption) (*Loopback, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	return NewLoopback(addr, u.Path, opts...), nil
}

// Authorize opens authURL and waits for the redirect. The listener only
// lives for the duration of the call. When ctx is done before a redirect
// arrives the outcome is Cancelled.
func (l *Loopback) Authorize(ctx context.Context, authURL string) oauth.Outcome {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		log.LogErrorWithFields("redirect", "Failed to start callback listener", map[string]any{
			"addr":  l.addr,
			"error": err.Error(),
		})
		return oauth.Failed(fmt.Sprintf("listening on %s: %v", l.addr, err))
	}

	results := make(chan oauth.Outcome, 1)
	srv := &http.Server{
		Handler:           l.Router(results),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log.LogInfoWithFields("redirect", "Waiting for authorization redirect", map[string]any{
		"addr": ln.Addr().String(),
		"path": l.callbackPath,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var outcome oauth.Outcome
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.LogWarnWithFields("redirect", "Callback listener did not shut down cleanly", map[string]any{
					"error": err.Error(),
				})
			}
		}()

		if err := l.opener(authURL); err != nil {
			log.LogWarnWithFields("redirect", "Failed to open authorization page", map[string]any{
				"error": err.Error(),
			})
		}

		select {
		case outcome = <-results:
		case <-gctx.Done():
			outcome = oauth.Cancelled()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return oauth.Failed(fmt.Sprintf("callback listener: %v", err))
	}

	log.LogDebugWithFields("redirect", "Authorization redirect finished", map[string]any{
		"outcome": outcome.Kind.String(),
	})
	return outcome
}

// CompletePath is where the relay page forwards the redirect parameters
func (l *Loopback) CompletePath() string {
	return path.Join(l.callbackPath, "complete")
}

// Router serves the callback routes and delivers at most one outcome to
// results, which needs room for it. Later hits are answered but ignored, as
// are completions that carry neither a state nor an access token: any local
// page can hit the listener, and only a provider response may end the attempt.
func (l *Loopback) Router(results chan<- oauth.Outcome) http.Handler {
	var delivered atomic.Bool
	deliver := func(w http.ResponseWriter, outcome oauth.Outcome) {
		if !delivered.CompareAndSwap(false, true) {
			renderResult(w, http.StatusConflict, ResultPageData{
				Title:   "Already handled",
				Message: "This sign-in attempt has already completed.",
				IsError: true,
			})
			return
		}
		results <- outcome
		renderOutcome(w, outcome)
	}

	r := chi.NewRouter()
	r.Use(noStore)

	r.Get(l.callbackPath, func(w http.ResponseWriter, req *http.Request) {
		// Providers that answer in the query skip the relay.
		if hasAuthorizationResponse(req.URL.Query()) {
			deliver(w, oauth.OutcomeFromParams(req.URL.Query()))
			return
		}
		renderRelay(w, l.CompletePath())
	})

	r.Get(l.CompletePath(), func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if !hasAuthorizationResponse(q) {
			log.LogWarnWithFields("redirect", "Ignoring completion without state or token", map[string]any{
				"params": len(q),
			})
			renderResult(w, http.StatusBadRequest, ResultPageData{
				Title:   "No authorization response",
				Message: "This page did not come from the sign-in provider.",
				IsError: true,
			})
			return
		}
		deliver(w, oauth.OutcomeFromParams(q))
	})

	return r
}

func hasAuthorizationResponse(q url.Values) bool {
	return q.Has("access_token") || q.Has("state")
}

func renderOutcome(w http.ResponseWriter, outcome oauth.Outcome) {
	data := ResultPageData{Title: "Signed in", Message: "Authorization received."}
	status := http.StatusOK
	switch {
	case outcome.Kind == oauth.OutcomeError:
		data = ResultPageData{Title: "Sign-in failed", Message: outcome.Reason, IsError: true}
		status = http.StatusBadRequest
	case outcome.ProviderError != "":
		data = ResultPageData{Title: "Sign-in declined", Message: "Access was not granted.", IsError: true}
	}
	renderResult(w, status, data)
}

func renderRelay(w http.ResponseWriter, completePath string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := relayPageTemplate.Execute(w, RelayPageData{CompletePath: completePath}); err != nil {
		log.LogError("Failed to render relay page: %v", err)
	}
}

func renderResult(w http.ResponseWriter, status int, data ResultPageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPageTemplate.Execute(w, data); err != nil {
		log.LogError("Failed to render result page: %v", err)
	}
}

// noStore keeps tokens in the URL out of caches and referrers
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
