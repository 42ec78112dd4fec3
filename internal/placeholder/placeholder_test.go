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

package placeholder

import (
	"reflect"
	"testing"
)

func TestSubstituteString(t *testing.T) {
	data := map[string]string{
		"NAME":   "X",
		"ARTIST": "Y",
	}

	got := Substitute("Song: {{NAME}} by {{ARTIST}}", data)
	if got != "Song: X by Y" {
		t.Errorf("Substitute = %q, want %q", got, "Song: X by Y")
	}
}

func TestSubstitutePartialResolution(t *testing.T) {
	// Unknown keys stay as the literal token, never become empty strings.
	got := Substitute("Song: {{NAME}} by {{ARTIST}}", map[string]string{"NAME": "X"})
	want := "Song: X by {{ARTIST}}"
	if got != want {
		t.Errorf("Substitute = %q, want %q", got, want)
	}
}

func TestSubstituteIdempotent(t *testing.T) {
	data := map[string]string{"A": "1"}
	template := "{{A}} and {{B}}"

	first := Substitute(template, data)
	second := Substitute(first, data)
	if first != second {
		t.Errorf("Substitute not idempotent: first %q, second %q", first, second)
	}
}

func TestSubstituteNested(t *testing.T) {
	data := map[string]string{"CONTENT": "hello", "AUTHOR": "alice"}

	value := map[string]any{
		"message": "{{AUTHOR}}: {{CONTENT}}",
		"tags":    []any{"{{AUTHOR}}", "static", 42},
		"count":   3,
		"urgent":  true,
		"extra":   nil,
	}

	got := Substitute(value, data).(map[string]any)

	if got["message"] != "alice: hello" {
		t.Errorf("message = %v", got["message"])
	}
	wantTags := []any{"alice", "static", 42}
	if !reflect.DeepEqual(got["tags"], wantTags) {
		t.Errorf("tags = %v, want %v", got["tags"], wantTags)
	}
	if got["count"] != 3 || got["urgent"] != true || got["extra"] != nil {
		t.Errorf("scalars must pass through unchanged, got %v", got)
	}
}

func TestSubstituteScalarPassthrough(t *testing.T) {
	for _, v := range []any{42, 3.14, true, nil} {
		if got := Substitute(v, map[string]string{"A": "x"}); got != v {
			t.Errorf("Substitute(%v) = %v, want unchanged", v, got)
		}
	}
}

func TestSubstituteStringMap(t *testing.T) {
	got := Substitute(map[string]string{"to": "{{EMAIL}}"}, map[string]string{"EMAIL": "a@b.c"})
	want := map[string]string{"to": "a@b.c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Substitute = %v, want %v", got, want)
	}
}

func TestExtractKeys(t *testing.T) {
	keys := ExtractKeys("{{A}} then {{B}} then {{A}} again")
	want := []string{"A", "B", "A"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("ExtractKeys = %v, want %v (duplicates preserved, in order)", keys, want)
	}

	if keys := ExtractKeys("no tokens here"); keys != nil {
		t.Errorf("ExtractKeys = %v, want nil", keys)
	}
}

func TestExtractKeysIgnoresMalformed(t *testing.T) {
	keys := ExtractKeys("{{A} {B}} {{C}}")
	want := []string{"C"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("ExtractKeys = %v, want %v", keys, want)
	}
}
