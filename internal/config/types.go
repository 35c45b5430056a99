package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Provider defaults
const (
	DefaultAuthorizationEndpoint = "https://id.twitch.tv/oauth2/authorize"
	DefaultRevocationEndpoint    = "https://id.twitch.tv/oauth2/revoke"
	DefaultAPIBaseURL            = "https://api.twitch.tv/helix"
	DefaultRedirectURI           = "http://localhost:3000/callback"
	DefaultHTTPTimeout           = 30 * time.Second

	// ClientIDEnv is read when no config file is given
	ClientIDEnv = "CLIENT_ID"
)

// DefaultScopes are requested unless the config overrides them
var DefaultScopes = []string{"openid", "user:read:email", "user:read:follows"}

// Config is the resolved process configuration. Environment references are
// already substituted.
type Config struct {
	ClientID              string
	RedirectURI           string
	AuthorizationEndpoint string
	RevocationEndpoint    string
	APIBaseURL            string
	Scopes                []string

	// RedirectTimeout bounds the wait for the browser redirect; zero means no limit
	RedirectTimeout time.Duration
	HTTPTimeout     time.Duration

	// CallbackAddr is where the loopback redirect handler listens. Derived
	// from RedirectURI when empty.
	CallbackAddr string

	// MetricsAddr serves /metrics when set
	MetricsAddr string
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		RedirectURI:           DefaultRedirectURI,
		AuthorizationEndpoint: DefaultAuthorizationEndpoint,
		RevocationEndpoint:    DefaultRevocationEndpoint,
		APIBaseURL:            DefaultAPIBaseURL,
		Scopes:                append([]string(nil), DefaultScopes...),
		HTTPTimeout:           DefaultHTTPTimeout,
	}
}

// UnmarshalJSON overlays the fields present in data onto c. String fields
// accept either a literal or {"$env": "VAR"}; durations use Go syntax.
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		ClientID              json.RawMessage `json:"clientId"`
		RedirectURI           json.RawMessage `json:"redirectUri"`
		AuthorizationEndpoint json.RawMessage `json:"authorizationEndpoint"`
		RevocationEndpoint    json.RawMessage `json:"revocationEndpoint"`
		APIBaseURL            json.RawMessage `json:"apiBaseUrl"`
		Scopes                []string        `json:"scopes"`
		RedirectTimeout       string          `json:"redirectTimeout"`
		HTTPTimeout           string          `json:"httpTimeout"`
		CallbackAddr          json.RawMessage `json:"callbackAddr"`
		MetricsAddr           json.RawMessage `json:"metricsAddr"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := []struct {
		name string
		raw  json.RawMessage
		dst  *string
	}{
		{"clientId", raw.ClientID, &c.ClientID},
		{"redirectUri", raw.RedirectURI, &c.RedirectURI},
		{"authorizationEndpoint", raw.AuthorizationEndpoint, &c.AuthorizationEndpoint},
		{"revocationEndpoint", raw.RevocationEndpoint, &c.RevocationEndpoint},
		{"apiBaseUrl", raw.APIBaseURL, &c.APIBaseURL},
		{"callbackAddr", raw.CallbackAddr, &c.CallbackAddr},
		{"metricsAddr", raw.MetricsAddr, &c.MetricsAddr},
	}
	for _, f := range fields {
		if f.raw == nil {
			continue
		}
		value, err := ParseConfigValue(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", f.name, err)
		}
		*f.dst = value
	}

	if raw.Scopes != nil {
		c.Scopes = raw.Scopes
	}

	if raw.RedirectTimeout != "" {
		d, err := time.ParseDuration(raw.RedirectTimeout)
		if err != nil {
			return fmt.Errorf("parsing redirectTimeout: %w", err)
		}
		c.RedirectTimeout = d
	}
	if raw.HTTPTimeout != "" {
		d, err := time.ParseDuration(raw.HTTPTimeout)
		if err != nil {
			return fmt.Errorf("parsing httpTimeout: %w", err)
		}
		c.HTTPTimeout = d
	}

	return nil
}

// ParseConfigValue resolves a config value that is either a plain string or
// an {"$env": "VAR"} reference. An unset variable is an error.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}
