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

// Package reaction implements the side effects bindings fire: posting
// messages, sending email, writing log rows. Executors receive an
// already-substituted configuration and perform their effect exactly once
// per call.
package reaction

import (
	"context"
	"sync"

	"github.com/tombee/relay/internal/schema"
)

// Executor is implemented once per supported reaction name.
type Executor interface {
	// Name returns the reaction name this executor handles.
	Name() string

	// Supports reports whether this executor handles the given reaction name.
	Supports(reactionName string) bool

	// Provider returns the provider key this executor needs authorization
	// for, or provider.None when it needs none.
	Provider() string

	// Fields returns the executor's static configuration schema.
	Fields() []schema.Field

	// Run performs the side effect with a substituted configuration and
	// returns a short result description for the execution record.
	Run(ctx context.Context, userID string, config map[string]any) (string, error)
}

// Registry holds all registered executors. First registration wins for a
// given reaction name, matching the detector registry's semantics.
type Registry struct {
	mu        sync.RWMutex
	executors []Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an executor.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors = append(r.executors, e)
}

// Supports reports whether any registered executor handles the reaction name.
func (r *Registry) Supports(reactionName string) bool {
	_, ok := r.Find(reactionName)
	return ok
}

// Find returns the first executor supporting the reaction name.
func (r *Registry) Find(reactionName string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.executors {
		if e.Supports(reactionName) {
			return e, true
		}
	}
	return nil, false
}

// All returns every registered executor in registration order.
func (r *Registry) All() []Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Executor, len(r.executors))
	copy(out, r.executors)
	return out
}

// configString extracts a string field from a substituted configuration.
func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}
