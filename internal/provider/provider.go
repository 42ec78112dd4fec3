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

// Package provider holds the collaborator contracts the engine depends on
// for talking to external services: authorization lookup, token access, and
// the authenticated outbound requester. Detectors and reaction executors
// depend on these interfaces, never on raw credentials.
package provider

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
)

// Known provider keys. The "none" provider marks actions/reactions that
// need no external authorization (e.g. the log_event reaction).
const (
	None    = "none"
	Spotify = "spotify"
	Gmail   = "gmail"
	Discord = "discord"
	GitHub  = "github"
	Slack   = "slack"
)

// Request describes one outbound call made on a user's behalf.
// Path is joined to the provider's configured base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is the outcome of an outbound call. Non-2xx responses are
// returned as-is so callers can decide how to classify them.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Links answers whether a user holds an active authorization for a provider.
type Links interface {
	HasLinked(ctx context.Context, userID, provider string) (bool, error)
}

// TokenSource yields a valid access token for (user, provider).
// Token refresh is the implementation's concern; callers always receive a
// usable token or an error.
type TokenSource interface {
	Token(ctx context.Context, userID, provider string) (*oauth2.Token, error)
}

// Requester performs one authenticated outbound call on the user's behalf.
type Requester interface {
	Do(ctx context.Context, provider, userID string, req *Request) (*Response, error)
}
