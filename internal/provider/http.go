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

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tombee/relay/pkg/errors"
	"github.com/tombee/relay/pkg/httpclient"
)

// failureEscalation is the consecutive transport failure count at which
// logging for a provider escalates from warn to error.
const failureEscalation = 5

// Endpoint describes how to reach one provider's API.
type Endpoint struct {
	// BaseURL is the API root, e.g. "https://api.spotify.com".
	BaseURL string

	// AuthScheme is the Authorization header prefix. Default "Bearer";
	// Discord bot tokens use "Bot", GitHub tokens use "token".
	AuthScheme string

	// RequestsPerSecond caps outbound calls to this provider.
	// Zero means a conservative default of 5 req/s.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. Zero means 5.
	Burst int
}

// HTTPRequester is the production Requester: it injects the user's token,
// rate-limits per provider, and executes over the shared retrying client.
type HTTPRequester struct {
	endpoints map[string]Endpoint
	tokens    TokenSource
	client    *http.Client
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	failures map[string]int
}

// NewHTTPRequester creates a requester for the given provider endpoints.
func NewHTTPRequester(endpoints map[string]Endpoint, tokens TokenSource, logger *slog.Logger) (*HTTPRequester, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	return &HTTPRequester{
		endpoints: endpoints,
		tokens:    tokens,
		client:    client,
		logger:    logger,
		limiters:  make(map[string]*rate.Limiter),
		failures:  make(map[string]int),
	}, nil
}

// Do performs one authenticated call against the provider's API.
// Transport-level failures come back as *errors.ProviderError; HTTP error
// statuses are returned in the Response for the caller to classify.
func (r *HTTPRequester) Do(ctx context.Context, provider, userID string, req *Request) (*Response, error) {
	endpoint, ok := r.endpoints[provider]
	if !ok {
		return nil, &errors.ProviderError{
			Provider:   provider,
			Message:    "no endpoint configured",
			Suggestion: "add the provider under providers: in the relay config file",
		}
	}

	if err := r.limiter(provider, endpoint).Wait(ctx); err != nil {
		return nil, err
	}

	token, err := r.tokens.Token(ctx, userID, provider)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider: provider,
			Message:  "failed to obtain access token",
			Cause:    err,
		}
	}

	apiURL := strings.TrimRight(endpoint.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		apiURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	scheme := endpoint.AuthScheme
	if scheme == "" {
		scheme = "Bearer"
	}
	httpReq.Header.Set("Authorization", scheme+" "+token.AccessToken)
	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		r.recordFailure(provider, err)
		return nil, &errors.ProviderError{
			Provider: provider,
			Message:  "request failed",
			Cause:    err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		r.recordFailure(provider, err)
		return nil, &errors.ProviderError{
			Provider: provider,
			Message:  "failed to read response",
			Cause:    err,
		}
	}

	r.recordSuccess(provider)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// recordFailure tracks consecutive transport failures per provider.
// Severity escalates once a provider has failed failureEscalation times in
// a row, so a persistent outage stands out from a transient blip.
func (r *HTTPRequester) recordFailure(provider string, err error) {
	r.mu.Lock()
	r.failures[provider]++
	streak := r.failures[provider]
	r.mu.Unlock()

	attrs := []any{
		slog.String("provider", provider),
		slog.Int("consecutive_failures", streak),
		slog.Any("error", err),
	}
	if streak >= failureEscalation {
		r.logger.Error("provider transport failing repeatedly", attrs...)
	} else {
		r.logger.Warn("provider transport failure", attrs...)
	}
}

// recordSuccess resets the failure streak after a completed call.
func (r *HTTPRequester) recordSuccess(provider string) {
	r.mu.Lock()
	streak := r.failures[provider]
	r.failures[provider] = 0
	r.mu.Unlock()

	if streak >= failureEscalation {
		r.logger.Info("provider transport recovered",
			slog.String("provider", provider),
			slog.Int("previous_failures", streak))
	}
}

// limiter returns the rate limiter for a provider, creating it on first use.
func (r *HTTPRequester) limiter(provider string, endpoint Endpoint) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, ok := r.limiters[provider]
	if !ok {
		rps := endpoint.RequestsPerSecond
		if rps <= 0 {
			rps = 5
		}
		burst := endpoint.Burst
		if burst <= 0 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
		r.limiters[provider] = limiter
	}
	return limiter
}
