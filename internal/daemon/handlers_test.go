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

package daemon

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tombee/relay/internal/detector"
	"github.com/tombee/relay/internal/provider"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Daemon{
		opts:      Options{Version: "test"},
		logger:    logger,
		feed:      provider.NewFeed(),
		detectors: detector.NewRegistry(logger, nil),
	}
}

func TestHealthz(t *testing.T) {
	d := testDaemon(t)
	srv := httptest.NewServer(d.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("expected version test, got %v", body["version"])
	}
}

func TestFeedIngressPublishesToSubscribers(t *testing.T) {
	d := testDaemon(t)
	srv := httptest.NewServer(d.routes())
	defer srv.Close()

	events, cancel := d.feed.Subscribe(provider.Discord, "chan-1")
	defer cancel()

	resp, err := http.Post(
		srv.URL+"/feed/discord/chan-1",
		"application/json",
		strings.NewReader(`{"id":"m1","content":"hello"}`),
	)
	if err != nil {
		t.Fatalf("feed post failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case ev := <-events:
		if ev.Provider != provider.Discord || ev.Resource != "chan-1" {
			t.Errorf("unexpected event key: %s/%s", ev.Provider, ev.Resource)
		}
		if ev.Payload["content"] != "hello" {
			t.Errorf("unexpected payload: %v", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event to reach subscriber")
	}
}

func TestFeedIngressRejectsMalformedBody(t *testing.T) {
	d := testDaemon(t)
	srv := httptest.NewServer(d.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/feed/discord/chan-1", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("feed post failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
