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

// Package placeholder rewrites {{KEY}} tokens inside reaction configuration
// values using the flat key/value map extracted from a detected event.
//
// Substitution is pure and deterministic: unknown keys are preserved as the
// literal {{KEY}} token so a partially resolved configuration is still
// inspectable, and running the same substitution twice yields the same
// output.
package placeholder

import (
	"regexp"
	"strings"
)

// tokenPattern matches {{KEY}} occurrences. Keys are the fixed vocabularies
// published by detectors: uppercase identifiers with underscores.
var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// Substitute rewrites every {{KEY}} token inside value using data.
//
// Strings are rewritten token by token; sequences are mapped element-wise;
// keyed structures are mapped over their values, preserving keys. Any other
// scalar (number, boolean, nil) passes through unchanged. Keys absent from
// data are left as the literal {{KEY}} token.
func Substitute(value any, data map[string]string) any {
	switch v := value.(type) {
	case string:
		return substituteString(v, data)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Substitute(elem, data)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = Substitute(elem, data)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, elem := range v {
			out[k] = substituteString(elem, data)
		}
		return out
	default:
		return value
	}
}

// substituteString resolves tokens in a single string.
func substituteString(s string, data map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		key := token[2 : len(token)-2]
		if replacement, ok := data[key]; ok {
			return replacement
		}
		return token
	})
}

// ExtractKeys returns every {{KEY}} occurrence in template in encounter
// order, including duplicates. Used for advertising which placeholders a
// reaction configuration references.
func ExtractKeys(template string) []string {
	matches := tokenPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}
