package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgellow/streamauth/internal/auth"
	"github.com/dgellow/streamauth/internal/config"
	"github.com/dgellow/streamauth/internal/idp"
	"github.com/dgellow/streamauth/internal/log"
	"github.com/dgellow/streamauth/internal/metrics"
	"github.com/dgellow/streamauth/internal/oauth"
	"github.com/dgellow/streamauth/internal/redirect"
	"github.com/dgellow/streamauth/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// App is the command-line sign-in application with all dependencies built
type App struct {
	config      config.Config
	flow        *auth.Flow
	registry    *prometheus.Registry
	unsubscribe func()
}

// AppOption configures an App
type AppOption func(*appOptions)

type appOptions struct {
	redirect auth.RedirectHandler
	opener   redirect.Opener
}

// WithRedirectHandler replaces the loopback browser redirect
func WithRedirectHandler(h auth.RedirectHandler) AppOption {
	return func(o *appOptions) {
		o.redirect = h
	}
}

// WithOpener changes how the loopback handler shows the authorization page
func WithOpener(o redirect.Opener) AppOption {
	return func(opts *appOptions) {
		opts.opener = o
	}
}

// NewApp wires the flow, the session observer and the metrics registry
func NewApp(cfg config.Config, opts ...AppOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	log.LogInfoWithFields("app", "Building application", map[string]any{
		"clientId":     cfg.ClientID,
		"callbackAddr": cfg.CallbackAddr,
		"scopes":       cfg.Scopes,
	})

	if o.redirect == nil {
		var loopbackOpts []redirect.LoopbackOption
		if o.opener != nil {
			loopbackOpts = append(loopbackOpts, redirect.WithOpener(o.opener))
		}
		loopback, err := redirect.NewLoopbackForRedirectURI(cfg.CallbackAddr, cfg.RedirectURI, loopbackOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to setup redirect handler: %w", err)
		}
		o.redirect = loopback
	}

	client := idp.NewClient(cfg.APIBaseURL, cfg.ClientID, idp.WithTimeout(cfg.HTTPTimeout))
	revoker := oauth.NewHTTPRevoker(cfg.RevocationEndpoint, &http.Client{Timeout: cfg.HTTPTimeout})

	registry := prometheus.NewRegistry()
	store := session.NewStore()
	unsubscribe := store.Subscribe(logSession)

	flow := auth.NewFlow(auth.Config{
		AuthorizationEndpoint: cfg.AuthorizationEndpoint,
		RedirectURI:           cfg.RedirectURI,
		Scopes:                cfg.Scopes,
		RedirectTimeout:       cfg.RedirectTimeout,
	}, store, client, o.redirect, revoker, auth.WithMetrics(metrics.New(registry)))

	return &App{
		config:      cfg,
		flow:        flow,
		registry:    registry,
		unsubscribe: unsubscribe,
	}, nil
}

// Flow exposes the sign-in flow
func (a *App) Flow() *auth.Flow {
	return a.flow
}

// Registry returns the registry the authentication counters live in
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Run signs the user in, writes the profile to out and, when signOut is
// set, signs out again before returning.
func (a *App) Run(ctx context.Context, out io.Writer, signOut bool) error {
	defer a.unsubscribe()

	if a.config.MetricsAddr != "" {
		stop := a.serveMetrics()
		defer stop()
	}

	if err := a.flow.SignIn(ctx); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	current := a.flow.Store().Snapshot()
	if !current.Authenticated() {
		fmt.Fprintln(out, "Sign-in cancelled")
		return nil
	}

	fmt.Fprintf(out, "Signed in as %s (id %d)\n", current.User.DisplayName, current.User.ID)
	if current.User.Email != "" {
		fmt.Fprintf(out, "  email: %s\n", current.User.Email)
	}
	if current.User.ProfileImageURL != "" {
		fmt.Fprintf(out, "  image: %s\n", current.User.ProfileImageURL)
	}

	if signOut {
		a.flow.SignOut(ctx)
		fmt.Fprintln(out, "Signed out")
	}
	return nil
}

// serveMetrics exposes /metrics on the configured address until stop is called
func (a *App) serveMetrics() (stop func()) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              a.config.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.LogInfoWithFields("app", "Serving metrics", map[string]any{
			"addr": a.config.MetricsAddr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogErrorWithFields("app", "Metrics server error", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.LogWarnWithFields("app", "Metrics server shutdown error", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

func logSession(s session.Session) {
	fields := map[string]any{
		"state":        s.State.String(),
		"isSigningIn":  s.IsSigningIn,
		"isSigningOut": s.IsSigningOut,
	}
	if s.User != nil {
		fields["user"] = s.User.DisplayName
	}
	log.LogInfoWithFields("session", "Session changed", fields)
}
