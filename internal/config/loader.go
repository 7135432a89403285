package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names and prefix.
const (
	EnvPrefix     = "CONTACTS_"
	EnvConfigFile = "CONTACTS_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CONTACTS_CONFIG is set
//  3. env (prefix CONTACTS_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CONTACTS_REQUIRED_SCOPE -> required_scope. Underscores are kept so the
	// flat koanf tags match.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// the file path itself is not a config key
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return invalid("addr", "must not be empty")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return invalid("tls_cert_file", "and tls_key_file must be set together")
	}
	if c.TLSEnabled() && c.HTTPSAddr == "" {
		return invalid("https_addr", "must not be empty when TLS is enabled")
	}
	if c.Authority == "" {
		return invalid("authority", "must not be empty")
	}
	if u, err := url.Parse(c.Authority); err != nil || !u.IsAbs() || u.Host == "" {
		return invalid("authority", "must be an absolute URL")
	}
	if strings.TrimSpace(c.RequiredScope) == "" {
		return invalid("required_scope", "must not be empty")
	}
	return nil
}
