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

package httpclient

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	bad := DefaultConfig()
	bad.Timeout = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero timeout")
	}

	bad = DefaultConfig()
	bad.UserAgent = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty user agent")
	}

	bad = DefaultConfig()
	bad.MaxBackoff = bad.RetryBackoff / 2
	if err := bad.Validate(); err == nil {
		t.Error("expected error for max_backoff < retry_backoff")
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var gotUA atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "relay-test/1.0"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()

	if ua := gotUA.Load(); ua != "relay-test/1.0" {
		t.Errorf("User-Agent = %v, want relay-test/1.0", ua)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 after retries", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNoRetryForPost(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Post(server.URL, "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (POST is never auto-retried)", calls.Load())
	}
}

func TestSanitizeURL(t *testing.T) {
	u, _ := url.Parse("https://api.example.com/v1/items?access_token=secret123&limit=1")
	got := sanitizeURL(u)
	if strings.Contains(got, "secret123") {
		t.Errorf("sanitized URL still contains secret: %s", got)
	}
	if !strings.Contains(got, "limit=1") {
		t.Errorf("sanitized URL lost benign params: %s", got)
	}
}

func TestShouldRetryStatus(t *testing.T) {
	for status, want := range map[int]bool{
		200: false, 201: false, 400: false, 401: false, 404: false,
		408: true, 429: true, 500: true, 502: true, 503: true,
	} {
		if got := shouldRetryStatus(status); got != want {
			t.Errorf("shouldRetryStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
