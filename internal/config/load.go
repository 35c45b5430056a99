package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/streamauth/internal/envutil"
	"github.com/dgellow/streamauth/internal/log"
	"github.com/joho/godotenv"
)

// DotEnvFiles are loaded, in order, before the config is resolved. Values
// already present in the environment are never overridden, so earlier
// files win over later ones.
var DotEnvFiles = []string{".env.local", ".env"}

// Load reads the config at path over the defaults. An empty path yields the
// defaults alone. A client ID missing from both falls back to CLIENT_ID.
func Load(path string) (Config, error) {
	if err := loadDotEnv(DotEnvFiles...); err != nil {
		return Config{}, err
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv(ClientIDEnv)
	}

	if cfg.CallbackAddr == "" {
		addr, err := callbackAddrFor(cfg.RedirectURI)
		if err != nil {
			return Config{}, fmt.Errorf("config validation failed: %w", err)
		}
		cfg.CallbackAddr = addr
	}

	if err := ValidateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
		log.LogDebugWithFields("config", "Loaded environment file", map[string]any{
			"file": f,
		})
	}
	return nil
}

// callbackAddrFor derives the loopback listen address from the redirect URI
func callbackAddrFor(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("redirectUri: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("redirectUri must be an absolute URL")
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(cfg *Config) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("clientId is required (set %s or clientId in the config file)", ClientIDEnv)
	}

	urls := []struct {
		name       string
		value      string
		requireTLS bool
	}{
		{"redirectUri", cfg.RedirectURI, false},
		{"authorizationEndpoint", cfg.AuthorizationEndpoint, true},
		{"revocationEndpoint", cfg.RevocationEndpoint, true},
		{"apiBaseUrl", cfg.APIBaseURL, true},
	}
	for _, u := range urls {
		if err := validateURL(u.name, u.value, u.requireTLS); err != nil {
			return err
		}
	}

	if strings.ContainsAny(cfg.AuthorizationEndpoint, "?#") {
		return fmt.Errorf("authorizationEndpoint must not contain a query or fragment")
	}

	if len(cfg.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	for _, s := range cfg.Scopes {
		if strings.TrimSpace(s) == "" || strings.ContainsAny(s, " \t") {
			return fmt.Errorf("invalid scope %q", s)
		}
	}

	if cfg.RedirectTimeout < 0 {
		return fmt.Errorf("redirectTimeout cannot be negative")
	}
	if cfg.HTTPTimeout < 0 {
		return fmt.Errorf("httpTimeout cannot be negative")
	}
	if cfg.HTTPTimeout == 0 {
		log.LogWarn("httpTimeout is 0 (unlimited) - provider calls may hang")
	}

	if _, _, err := net.SplitHostPort(cfg.CallbackAddr); err != nil {
		return fmt.Errorf("callbackAddr: %w", err)
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
	}

	return nil
}

// validateURL checks value is an absolute http(s) URL. With requireTLS,
// plain http is only accepted for loopback hosts or in development mode.
func validateURL(name, value string, requireTLS bool) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL: %s", name, value)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host: %s", name, value)
	}
	if requireTLS && u.Scheme == "http" && !envutil.IsLoopbackHost(u.Hostname()) {
		if !envutil.IsDev() {
			return fmt.Errorf("%s must use https: %s", name, value)
		}
		log.LogWarnWithFields("config", "Using plain HTTP provider endpoint", map[string]any{
			"field": name,
			"url":   value,
		})
	}
	return nil
}
