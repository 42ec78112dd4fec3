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
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/tombee/relay/pkg/errors"
)

// StaticAuthorizer is a Links + TokenSource backed by a fixed table of
// tokens per (provider, user), typically loaded from the config file.
// OAuth acquisition and refresh belong to an external account service;
// this implementation covers development and single-operator deployments
// where tokens are provisioned out of band.
type StaticAuthorizer struct {
	mu sync.RWMutex
	// tokens maps provider -> userID -> access token.
	tokens map[string]map[string]string
}

// NewStaticAuthorizer creates an authorizer from a provider→user→token table.
func NewStaticAuthorizer(tokens map[string]map[string]string) *StaticAuthorizer {
	if tokens == nil {
		tokens = make(map[string]map[string]string)
	}
	return &StaticAuthorizer{tokens: tokens}
}

// HasLinked reports whether a token is provisioned for (user, provider).
// The "none" provider is always linked.
func (a *StaticAuthorizer) HasLinked(ctx context.Context, userID, provider string) (bool, error) {
	if provider == None {
		return true, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	users, ok := a.tokens[provider]
	if !ok {
		return false, nil
	}
	token, ok := users[userID]
	return ok && token != "", nil
}

// Token returns the provisioned token wrapped as a static oauth2 source.
func (a *StaticAuthorizer) Token(ctx context.Context, userID, provider string) (*oauth2.Token, error) {
	a.mu.RLock()
	users, ok := a.tokens[provider]
	var raw string
	if ok {
		raw = users[userID]
	}
	a.mu.RUnlock()

	if raw == "" {
		return nil, &errors.NotLinkedError{Provider: provider, UserID: userID}
	}

	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: raw}).Token()
}

// SetToken provisions or replaces a token for (user, provider).
func (a *StaticAuthorizer) SetToken(userID, provider, token string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tokens[provider] == nil {
		a.tokens[provider] = make(map[string]string)
	}
	a.tokens[provider][userID] = token
}
