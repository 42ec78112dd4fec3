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

package cli

import (
	"testing"

	"github.com/tombee/relay/internal/schema"
)

func TestParseConfigPairs(t *testing.T) {
	fields := []schema.Field{
		{Name: "channel_id", Type: schema.String},
		{Name: "limit", Type: schema.Number},
		{Name: "notify", Type: schema.Boolean},
	}

	cfg, err := parseConfigPairs([]string{
		"channel_id=123456789",
		"limit=5",
		"notify=true",
		"message=hello world",
	}, fields)
	if err != nil {
		t.Fatalf("parseConfigPairs failed: %v", err)
	}

	// Numeric-looking values keep their declared type: a string field
	// stays a string even when it parses as a number.
	if v, ok := cfg["channel_id"].(string); !ok || v != "123456789" {
		t.Errorf("expected channel_id to stay a string, got %T %v", cfg["channel_id"], cfg["channel_id"])
	}
	if v, ok := cfg["limit"].(int64); !ok || v != 5 {
		t.Errorf("expected limit int64 5, got %T %v", cfg["limit"], cfg["limit"])
	}
	if v, ok := cfg["notify"].(bool); !ok || !v {
		t.Errorf("expected notify true, got %T %v", cfg["notify"], cfg["notify"])
	}
	if v, ok := cfg["message"].(string); !ok || v != "hello world" {
		t.Errorf("expected undeclared key to stay a string, got %T %v", cfg["message"], cfg["message"])
	}
}

func TestParseConfigPairsMalformed(t *testing.T) {
	if _, err := parseConfigPairs([]string{"no-equals"}, nil); err == nil {
		t.Error("expected error for entry without =")
	}
	if _, err := parseConfigPairs([]string{"=value"}, nil); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestParseConfigPairsBadTypes(t *testing.T) {
	fields := []schema.Field{
		{Name: "limit", Type: schema.Number},
		{Name: "notify", Type: schema.Boolean},
	}

	if _, err := parseConfigPairs([]string{"limit=lots"}, fields); err == nil {
		t.Error("expected error for non-numeric number field")
	}
	if _, err := parseConfigPairs([]string{"notify=maybe"}, fields); err == nil {
		t.Error("expected error for non-boolean boolean field")
	}
}

func TestParseConfigPairsEmpty(t *testing.T) {
	cfg, err := parseConfigPairs(nil, nil)
	if err != nil {
		t.Fatalf("parseConfigPairs failed: %v", err)
	}
	if len(cfg) != 0 {
		t.Errorf("expected empty config, got %v", cfg)
	}
}
