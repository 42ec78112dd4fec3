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

// Package store persists bindings, the action/reaction catalogue, and the
// append-only execution log.
package store

import (
	"context"
	"time"
)

// Binding ties one action to one reaction for one user.
type Binding struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Action         string         `json:"action"`
	Reaction       string         `json:"reaction"`
	ActionConfig   map[string]any `json:"action_config"`
	ReactionConfig map[string]any `json:"reaction_config"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Execution is one row of the append-only trigger->reaction log. Rows are
// written after each reaction invocation and never mutated.
type Execution struct {
	ID         int64             `json:"id"`
	BindingID  string            `json:"binding_id"`
	UserID     string            `json:"user_id"`
	Data       map[string]string `json:"data"`   // raw detected placeholder data
	Config     map[string]any    `json:"config"` // substituted reaction configuration
	Result     string            `json:"result"`
	Error      string            `json:"error,omitempty"`
	ExecutedAt time.Time         `json:"executed_at"`
}

// CatalogueEntry is one action or reaction known to the engine, recorded
// idempotently on first use.
type CatalogueEntry struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Repository is the narrow persistence contract the engine depends on.
type Repository interface {
	// CreateBinding persists a new binding.
	CreateBinding(ctx context.Context, b *Binding) error

	// FindBinding loads one binding by id. Returns a NotFoundError when
	// no such binding exists.
	FindBinding(ctx context.Context, id string) (*Binding, error)

	// FindActiveBindings loads every binding marked active, across users.
	// Used for restart recovery.
	FindActiveBindings(ctx context.Context) ([]*Binding, error)

	// FindBindingsByUser loads all of a user's bindings, newest first.
	FindBindingsByUser(ctx context.Context, userID string) ([]*Binding, error)

	// SetBindingActive flips a binding's active flag.
	SetBindingActive(ctx context.Context, id string, active bool) error

	// EnsureAction records an action in the catalogue if not yet present.
	EnsureAction(ctx context.Context, name, provider string) error

	// EnsureReaction records a reaction in the catalogue if not yet present.
	EnsureReaction(ctx context.Context, name, provider string) error

	// AppendExecution appends one execution record.
	AppendExecution(ctx context.Context, e *Execution) error

	// Close releases the underlying storage.
	Close() error
}
