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

// Package schema declares the configuration field contracts detectors and
// reaction executors expose, and validates configurations against them
// before a binding is accepted.
package schema

import (
	"fmt"
	"strings"

	"github.com/tombee/relay/pkg/errors"
)

// Field types.
const (
	String  = "string"
	Number  = "number"
	Boolean = "boolean"
	Email   = "email"
)

// Field describes one configuration field.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Validate checks a configuration map against a field schema: every
// required field must be present, and every present field type-correct.
// The first failure is returned as a ValidationError naming the field.
func Validate(fields []Field, config map[string]any) error {
	for _, f := range fields {
		value, present := config[f.Name]
		if !present {
			if f.Required {
				return &errors.ValidationError{
					Field:   f.Name,
					Message: "required field is missing",
				}
			}
			continue
		}

		if err := checkType(f, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(f Field, value any) error {
	switch f.Type {
	case String:
		if _, ok := value.(string); !ok {
			return typeError(f, "a string")
		}
	case Number:
		switch value.(type) {
		case int, int64, float64:
		default:
			return typeError(f, "a number")
		}
	case Boolean:
		if _, ok := value.(bool); !ok {
			return typeError(f, "a boolean")
		}
	case Email:
		s, ok := value.(string)
		if !ok {
			return typeError(f, "an email address")
		}
		if !strings.Contains(s, "@") {
			return &errors.ValidationError{
				Field:      f.Name,
				Message:    fmt.Sprintf("%q is not a valid email address", s),
				Suggestion: "the value must contain an @",
			}
		}
	default:
		return &errors.ValidationError{
			Field:   f.Name,
			Message: fmt.Sprintf("schema declares unknown type %q", f.Type),
		}
	}
	return nil
}

func typeError(f Field, want string) error {
	return &errors.ValidationError{
		Field:   f.Name,
		Message: fmt.Sprintf("must be %s", want),
	}
}
