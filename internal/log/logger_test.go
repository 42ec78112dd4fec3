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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("binding started", slog.String(BindingIDKey, "b1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["binding_id"] != "b1" {
		t.Errorf("binding_id = %v, want b1", entry["binding_id"])
	}
	if entry["msg"] != "binding started" {
		t.Errorf("msg = %v, want 'binding started'", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("Expected warn to be logged")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RELAY_DEBUG", "")
	t.Setenv("RELAY_LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")

	cfg := FromEnv()
	if cfg.Level != "error" {
		t.Errorf("Level = %q, want error", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Format = %q, want text", cfg.Format)
	}
}

func TestFromEnvDebugPrecedence(t *testing.T) {
	t.Setenv("RELAY_DEBUG", "1")
	t.Setenv("RELAY_LOG_LEVEL", "error")

	cfg := FromEnv()
	if cfg.Level != "debug" {
		t.Errorf("Level = %q, want debug (RELAY_DEBUG takes precedence)", cfg.Level)
	}
	if !cfg.AddSource {
		t.Error("Expected AddSource when RELAY_DEBUG is set")
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("abc"); got != "[REDACTED]" {
		t.Errorf("SanitizeToken(short) = %q, want [REDACTED]", got)
	}
	got := SanitizeToken("sk-1234567890")
	if !strings.HasSuffix(got, "7890") || strings.Contains(got, "sk-1") {
		t.Errorf("SanitizeToken = %q, want masked with last 4 visible", got)
	}
}
