// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the relay configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/reaction"
	"github.com/tombee/relay/pkg/errors"
)

// Config is the complete relay configuration.
type Config struct {
	Log        LogConfig           `yaml:"log"`
	Database   DatabaseConfig      `yaml:"database"`
	Watermarks WatermarkConfig     `yaml:"watermarks"`
	Metrics    MetricsConfig       `yaml:"metrics"`
	SMTP       reaction.SMTPConfig `yaml:"smtp"`

	// Providers maps a provider key to its API endpoint settings.
	// Unlisted providers fall back to built-in defaults.
	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`

	// Tokens maps provider -> user id -> access token, for deployments
	// where tokens are provisioned out of band instead of through an
	// OAuth account service.
	Tokens map[string]map[string]string `yaml:"tokens,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level,omitempty"`

	// Format is "json" or "text". Default text.
	Format string `yaml:"format,omitempty"`
}

// DatabaseConfig configures the bindings database.
type DatabaseConfig struct {
	// Path to the SQLite file. Default ~/.local/share/relay/relay.db.
	Path string `yaml:"path,omitempty"`
}

// WatermarkConfig configures the last-seen marker store.
type WatermarkConfig struct {
	// Store is "sqlite" or "memory". Default sqlite; the memory store
	// loses watermarks on restart, so pre-existing state reads as a
	// first observation again.
	Store string `yaml:"store,omitempty"`

	// Path to the SQLite file when Store is sqlite.
	// Default ~/.local/share/relay/watermarks.db.
	Path string `yaml:"path,omitempty"`

	// TTL expires idle watermarks. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the host:port serving /metrics and /healthz.
	// Default 127.0.0.1:9090. "off" disables the listener.
	Listen string `yaml:"listen,omitempty"`
}

// ProviderConfig overrides one provider's API endpoint settings.
type ProviderConfig struct {
	BaseURL           string  `yaml:"base_url,omitempty"`
	AuthScheme        string  `yaml:"auth_scheme,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty"`
}

// defaultEndpoints are the production APIs for the built-in providers.
var defaultEndpoints = map[string]provider.Endpoint{
	provider.Spotify: {BaseURL: "https://api.spotify.com"},
	provider.Gmail:   {BaseURL: "https://gmail.googleapis.com"},
	provider.Discord: {BaseURL: "https://discord.com", AuthScheme: "Bot"},
	provider.GitHub:  {BaseURL: "https://api.github.com", AuthScheme: "token"},
	provider.Slack:   {BaseURL: "https://slack.com"},
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:        LogConfig{Level: "info", Format: "text"},
		Watermarks: WatermarkConfig{Store: "sqlite"},
		Metrics:    MetricsConfig{Listen: "127.0.0.1:9090"},
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults; a malformed or invalid file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, &errors.ConfigError{Key: "file", Reason: "unreadable config file", Cause: err}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errors.ConfigError{Key: "file", Reason: "malformed YAML", Cause: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Watermarks.Store {
	case "", "sqlite", "memory":
	default:
		return &errors.ConfigError{
			Key:    "watermarks.store",
			Reason: fmt.Sprintf("unknown store %q, expected sqlite or memory", c.Watermarks.Store),
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return &errors.ConfigError{
			Key:    "log.level",
			Reason: fmt.Sprintf("unknown level %q", c.Log.Level),
		}
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return &errors.ConfigError{
			Key:    "log.format",
			Reason: fmt.Sprintf("unknown format %q", c.Log.Format),
		}
	}

	for key, p := range c.Providers {
		if p.RequestsPerSecond < 0 {
			return &errors.ConfigError{
				Key:    fmt.Sprintf("providers.%s.requests_per_second", key),
				Reason: "must not be negative",
			}
		}
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return &errors.ConfigError{
			Key:    "smtp.from",
			Reason: "required when smtp.host is set",
		}
	}

	return nil
}

// Endpoints merges the configured provider overrides over the built-in
// defaults, yielding the endpoint table the requester uses.
func (c *Config) Endpoints() map[string]provider.Endpoint {
	endpoints := make(map[string]provider.Endpoint, len(defaultEndpoints))
	for key, ep := range defaultEndpoints {
		endpoints[key] = ep
	}

	for key, override := range c.Providers {
		ep := endpoints[key]
		if override.BaseURL != "" {
			ep.BaseURL = override.BaseURL
		}
		if override.AuthScheme != "" {
			ep.AuthScheme = override.AuthScheme
		}
		if override.RequestsPerSecond > 0 {
			ep.RequestsPerSecond = override.RequestsPerSecond
		}
		if override.Burst > 0 {
			ep.Burst = override.Burst
		}
		endpoints[key] = ep
	}

	return endpoints
}

// UserTokens converts the tokens section into the provider->user->token
// table the static authorizer consumes.
func (c *Config) UserTokens() map[string]map[string]string {
	if c.Tokens == nil {
		return map[string]map[string]string{}
	}
	return c.Tokens
}
