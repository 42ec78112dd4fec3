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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Watermarks.Store)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Listen)
}

func TestLoadValidFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
database:
  path: /tmp/relay-test.db
watermarks:
  store: memory
  ttl: 1h
metrics:
  listen: "off"
smtp:
  host: mail.example.com
  port: 587
  from: relay@example.com
tokens:
  spotify:
    alice: token-a
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/relay-test.db", cfg.Database.Path)
	assert.Equal(t, "memory", cfg.Watermarks.Store)
	assert.Equal(t, time.Hour, cfg.Watermarks.TTL)
	assert.Equal(t, "off", cfg.Metrics.Listen)
	assert.Equal(t, "mail.example.com", cfg.SMTP.Host)
	assert.Equal(t, "relay@example.com", cfg.SMTP.From)
	require.Contains(t, cfg.Tokens, "spotify")
	assert.Equal(t, "token-a", cfg.Tokens["spotify"]["alice"])
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "log: [not a mapping")

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{
			name:    "unknown watermark store",
			mutate:  func(c *Config) { c.Watermarks.Store = "redis" },
			wantKey: "watermarks.store",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantKey: "log.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantKey: "log.format",
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.Providers = map[string]ProviderConfig{
					provider.Spotify: {RequestsPerSecond: -1},
				}
			},
			wantKey: "providers.spotify.requests_per_second",
		},
		{
			name:    "smtp host without from",
			mutate:  func(c *Config) { c.SMTP.Host = "mail.example.com" },
			wantKey: "smtp.from",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}
}

func TestEndpointsDefaults(t *testing.T) {
	endpoints := Default().Endpoints()

	assert.Equal(t, "https://api.spotify.com", endpoints[provider.Spotify].BaseURL)
	assert.Equal(t, "Bot", endpoints[provider.Discord].AuthScheme)
	assert.Equal(t, "token", endpoints[provider.GitHub].AuthScheme)
	assert.Equal(t, "https://gmail.googleapis.com", endpoints[provider.Gmail].BaseURL)
	assert.Equal(t, "https://slack.com", endpoints[provider.Slack].BaseURL)
}

func TestEndpointsOverridesMerge(t *testing.T) {
	cfg := Default()
	cfg.Providers = map[string]ProviderConfig{
		provider.Spotify: {BaseURL: "http://localhost:8080", RequestsPerSecond: 2},
	}

	endpoints := cfg.Endpoints()

	ep := endpoints[provider.Spotify]
	assert.Equal(t, "http://localhost:8080", ep.BaseURL)
	assert.Equal(t, float64(2), ep.RequestsPerSecond)

	// Unlisted providers keep their defaults.
	assert.Equal(t, "https://gmail.googleapis.com", endpoints[provider.Gmail].BaseURL)
}
