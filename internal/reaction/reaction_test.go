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

package reaction

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"testing"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/pkg/errors"
)

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first := NewLogEvent(logger)
	r.Register(first)
	r.Register(NewLogEvent(logger))

	found, ok := r.Find("log_event")
	if !ok {
		t.Fatal("expected log_event to be registered")
	}
	if found != Executor(first) {
		t.Error("expected the first registered executor to win")
	}
	if r.Supports("nope") {
		t.Error("unregistered reaction must not be supported")
	}
}

// recordingRequester captures the last outbound request and replies with a
// canned response.
type recordingRequester struct {
	lastPath string
	lastBody []byte
	response *provider.Response
	err      error
}

func (f *recordingRequester) Do(ctx context.Context, prov, userID string, req *provider.Request) (*provider.Response, error) {
	f.lastPath = req.Path
	f.lastBody = req.Body
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func TestDiscordPostMessage(t *testing.T) {
	requester := &recordingRequester{response: &provider.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"id": "999"}`),
	}}

	e := NewDiscordPostMessage(requester)
	result, err := e.Run(context.Background(), "u1", map[string]any{
		"channel_id": "c1",
		"content":    "New song: Bohemian Rhapsody",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(result, "999") {
		t.Errorf("result = %q, want posted message id mentioned", result)
	}
	if requester.lastPath != "/api/v10/channels/c1/messages" {
		t.Errorf("path = %q", requester.lastPath)
	}

	var sent map[string]string
	if err := json.Unmarshal(requester.lastBody, &sent); err != nil {
		t.Fatalf("unreadable request body: %v", err)
	}
	if sent["content"] != "New song: Bohemian Rhapsody" {
		t.Errorf("content = %q", sent["content"])
	}
}

func TestDiscordPostMessage_MissingFieldFailsBeforeRequest(t *testing.T) {
	requester := &recordingRequester{}
	e := NewDiscordPostMessage(requester)

	_, err := e.Run(context.Background(), "u1", map[string]any{"channel_id": "c1"})
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if requester.lastPath != "" {
		t.Error("no request must be made when validation fails")
	}
}

func TestSlackPostMessage_APIErrorInOKResponse(t *testing.T) {
	requester := &recordingRequester{response: &provider.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"ok": false, "error": "channel_not_found"}`),
	}}

	e := NewSlackPostMessage(requester)
	_, err := e.Run(context.Background(), "u1", map[string]any{
		"channel": "#general",
		"text":    "hello",
	})

	var eerr *errors.ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if !strings.Contains(eerr.Message, "channel_not_found") {
		t.Errorf("message = %q, want slack's error included", eerr.Message)
	}
}

func TestSendEmail(t *testing.T) {
	var sentTo []string
	var sentMsg []byte

	e := NewSendEmail(SMTPConfig{
		Host: "mail.example.com",
		Port: 587,
		From: "relay@example.com",
	})
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sentTo = to
		sentMsg = msg
		return nil
	}

	result, err := e.Run(context.Background(), "u1", map[string]any{
		"to":      "alice@example.com",
		"subject": "New like: Bohemian Rhapsody",
		"body":    "by Queen",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result != "sent email to alice@example.com" {
		t.Errorf("result = %q", result)
	}
	if len(sentTo) != 1 || sentTo[0] != "alice@example.com" {
		t.Errorf("sent to %v", sentTo)
	}
	if !strings.Contains(string(sentMsg), "Subject: New like: Bohemian Rhapsody") {
		t.Error("subject header missing from message")
	}
}

func TestSendEmail_HeaderInjectionStripped(t *testing.T) {
	var sentMsg []byte

	e := NewSendEmail(SMTPConfig{Host: "mail.example.com", Port: 25, From: "relay@example.com"})
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sentMsg = msg
		return nil
	}

	_, err := e.Run(context.Background(), "u1", map[string]any{
		"to":      "alice@example.com",
		"subject": "hi\r\nBcc: victim@example.com",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(string(sentMsg), "Bcc:") {
		t.Error("substituted newlines must not become extra headers")
	}
}

func TestSendEmail_UnconfiguredRelay(t *testing.T) {
	e := NewSendEmail(SMTPConfig{})

	_, err := e.Run(context.Background(), "u1", map[string]any{
		"to":      "alice@example.com",
		"subject": "hi",
	})
	var eerr *errors.ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
}

func TestLogEvent(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := NewLogEvent(logger)
	result, err := e.Run(context.Background(), "u1", map[string]any{
		"message": "triggered for Bohemian Rhapsody",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result != "logged event" {
		t.Errorf("result = %q", result)
	}
	if !strings.Contains(buf.String(), "Bohemian Rhapsody") {
		t.Error("message missing from log output")
	}
	if !strings.Contains(buf.String(), "u1") {
		t.Error("user id missing from log output")
	}
}
