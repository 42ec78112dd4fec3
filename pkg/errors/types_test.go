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

package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "channel_id", Message: "required field is missing"}
	if !strings.Contains(err.Error(), "channel_id") {
		t.Errorf("Expected field name in error, got %q", err.Error())
	}

	err = &ValidationError{Message: "bad config"}
	if strings.Contains(err.Error(), "on ") {
		t.Errorf("Expected no field clause, got %q", err.Error())
	}
}

func TestNotLinkedError(t *testing.T) {
	err := &NotLinkedError{Provider: "spotify", UserID: "u1"}
	if !strings.Contains(err.Error(), "spotify") {
		t.Errorf("Expected provider name in error, got %q", err.Error())
	}

	wrapped := Wrap(err, "starting binding")
	if !IsNotLinked(wrapped) {
		t.Error("Expected IsNotLinked to see through wrapping")
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Resource: "action", ID: "no_such_action"}
	want := "action not found: no_such_action"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsNotFound(fmt.Errorf("bind: %w", err)) {
		t.Error("Expected IsNotFound to see through wrapping")
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := New("connection refused")
	err := &ProviderError{Provider: "gmail", StatusCode: 503, Message: "upstream down", Cause: cause}

	if !Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("Expected status code in message, got %q", err.Error())
	}
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := New("smtp: 550 rejected")
	err := &ExecutionError{Reaction: "send_email", Message: "delivery rejected", Cause: cause}

	if !Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}

	var ee *ExecutionError
	if !As(Wrap(err, "sink"), &ee) {
		t.Fatal("Expected errors.As to find ExecutionError")
	}
	if ee.Reaction != "send_email" {
		t.Errorf("Reaction = %q, want send_email", ee.Reaction)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}
