// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CONTACTS_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the plaintext HTTP listen address, e.g. ":5000".
	// With TLS configured this listener only redirects to HTTPS.
	Addr string `koanf:"addr"`

	// HTTPSAddr configures the TLS listen address, e.g. ":5001".
	HTTPSAddr string `koanf:"https_addr"`

	// TLSCertFile and TLSKeyFile enable the TLS listener when both are set.
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// TrustProxyHeaders lets the redirect listener treat X-Forwarded-Proto
	// as proof of https. Enable it only behind a proxy that sets the header.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	// Authority is the base address of the token issuer. Tokens must carry it
	// as "iss" and its discovery document advertises the signing keys.
	Authority string `koanf:"authority"`

	// Audience, when set, must appear in the token "aud" claim.
	Audience string `koanf:"audience"`

	// RequiredScope is the scope value the "API" policy demands.
	RequiredScope string `koanf:"required_scope"`

	// SigningKeyFile points to a PEM public key. When set it replaces key
	// discovery at the authority.
	SigningKeyFile string `koanf:"signing_key_file"`

	// JWKSRefreshMinutes is the interval of the background key set refresh.
	JWKSRefreshMinutes int `koanf:"jwks_refresh_minutes"`

	// JWKSMinRefreshSeconds throttles refetches triggered by unknown key ids
	// and retries while the key set has never loaded.
	JWKSMinRefreshSeconds int `koanf:"jwks_min_refresh_seconds"`

	// ClockSkewSeconds is the leeway applied to exp/nbf/iat checks.
	ClockSkewSeconds int `koanf:"clock_skew_seconds"`

	// IssuerTimeoutSeconds bounds calls to the token issuer.
	IssuerTimeoutSeconds int `koanf:"issuer_timeout_seconds"`

	// SeedContacts preloads the store at startup.
	SeedContacts []SeedContact `koanf:"seed_contacts"`
}

// SeedContact is a contact preloaded from configuration.
type SeedContact struct {
	Name    string `koanf:"name"`
	Email   string `koanf:"email"`
	Phone   string `koanf:"phone"`
	Address string `koanf:"address"`
	City    string `koanf:"city"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":5000",
		HTTPSAddr:             ":5001",
		Authority:             "https://localhost:5001/identity",
		RequiredScope:         "write",
		JWKSRefreshMinutes:    360,
		JWKSMinRefreshSeconds: 30,
		ClockSkewSeconds:      60,
		IssuerTimeoutSeconds:  10,
	}
}

// TLSEnabled reports whether both TLS files are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// JWKSRefresh returns JWKSRefreshMinutes as a duration.
func (c *Config) JWKSRefresh() time.Duration {
	return time.Duration(c.JWKSRefreshMinutes) * time.Minute
}

// JWKSMinRefresh returns JWKSMinRefreshSeconds as a duration.
func (c *Config) JWKSMinRefresh() time.Duration {
	return time.Duration(c.JWKSMinRefreshSeconds) * time.Second
}

// ClockSkew returns ClockSkewSeconds as a duration.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// IssuerTimeout returns IssuerTimeoutSeconds as a duration.
func (c *Config) IssuerTimeout() time.Duration {
	return time.Duration(c.IssuerTimeoutSeconds) * time.Second
}
