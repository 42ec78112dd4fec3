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

package schema

import (
	"testing"

	"github.com/tombee/relay/pkg/errors"
)

func TestValidate(t *testing.T) {
	fields := []Field{
		{Name: "to", Type: Email, Required: true},
		{Name: "subject", Type: String, Required: true},
		{Name: "count", Type: Number},
		{Name: "urgent", Type: Boolean},
	}

	tests := []struct {
		name    string
		config  map[string]any
		wantErr string // offending field, empty for valid
	}{
		{
			name:   "valid full config",
			config: map[string]any{"to": "a@b.c", "subject": "hi", "count": 3, "urgent": true},
		},
		{
			name:   "optional fields omitted",
			config: map[string]any{"to": "a@b.c", "subject": "hi"},
		},
		{
			name:    "missing required field",
			config:  map[string]any{"to": "a@b.c"},
			wantErr: "subject",
		},
		{
			name:    "email without at sign",
			config:  map[string]any{"to": "not-an-email", "subject": "hi"},
			wantErr: "to",
		},
		{
			name:    "email of wrong type",
			config:  map[string]any{"to": 7, "subject": "hi"},
			wantErr: "to",
		},
		{
			name:    "wrong type for string",
			config:  map[string]any{"to": "a@b.c", "subject": 42},
			wantErr: "subject",
		},
		{
			name:    "wrong type for boolean",
			config:  map[string]any{"to": "a@b.c", "subject": "hi", "urgent": "yes"},
			wantErr: "urgent",
		},
		{
			name:   "float is a number",
			config: map[string]any{"to": "a@b.c", "subject": "hi", "count": 1.5},
		},
		{
			name:    "string is not a number",
			config:  map[string]any{"to": "a@b.c", "subject": "hi", "count": "3"},
			wantErr: "count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(fields, tt.config)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantErr {
				t.Errorf("offending field = %q, want %q", verr.Field, tt.wantErr)
			}
		})
	}
}

func TestValidateUnknownDeclaredType(t *testing.T) {
	err := Validate([]Field{{Name: "x", Type: "date"}}, map[string]any{"x": "2024-01-01"})
	if !errors.IsValidation(err) {
		t.Errorf("expected ValidationError for unknown schema type, got %v", err)
	}
}
