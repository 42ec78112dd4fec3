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

// Package engine coordinates bindings: it validates a requested
// action/reaction pair, persists it, runs its detection lifecycle, and
// routes each detected event through placeholder substitution into exactly
// one reaction execution.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/relay/internal/detector"
	"github.com/tombee/relay/internal/placeholder"
	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/reaction"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/internal/store"
	"github.com/tombee/relay/pkg/errors"
)

// Engine is the binding orchestrator.
type Engine struct {
	logger    *slog.Logger
	repo      store.Repository
	detectors *detector.Registry
	reactions *reaction.Registry
	links     provider.Links
	cache     *bindingCache

	// lifecycleCtx outlives individual requests: detection lifecycles
	// started by a bind call keep running after the call returns.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
}

// Config assembles the engine's collaborators.
type Config struct {
	Logger    *slog.Logger
	Repo      store.Repository
	Detectors *detector.Registry
	Reactions *reaction.Registry
	Links     provider.Links

	// CacheTTL bounds the active-binding summary cache.
	// Default 5 minutes. The cache is a freshness hint; persisted state
	// stays authoritative.
	CacheTTL time.Duration
}

// New creates the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Detectors == nil || cfg.Reactions == nil {
		return nil, fmt.Errorf("detector and reaction registries are required")
	}
	if cfg.Links == nil {
		return nil, fmt.Errorf("authorization lookup is required")
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		logger:          cfg.Logger,
		repo:            cfg.Repo,
		detectors:       cfg.Detectors,
		reactions:       cfg.Reactions,
		links:           cfg.Links,
		cache:           newBindingCache(cfg.CacheTTL),
		lifecycleCtx:    ctx,
		lifecycleCancel: cancel,
	}, nil
}

// Bind validates, persists, and starts a new binding, returning its id.
// Validation runs in full before anything is persisted: a failed bind
// leaves no binding row, no catalogue row, and no running lifecycle behind.
func (e *Engine) Bind(ctx context.Context, userID, actionName, reactionName string, actionConfig, reactionConfig map[string]any) (string, error) {
	if userID == "" {
		return "", &errors.ValidationError{Field: "user_id", Message: "required field is missing"}
	}

	d, ok := e.findDetector(actionName)
	if !ok {
		return "", &errors.NotFoundError{Resource: "action", ID: actionName}
	}
	executor, ok := e.reactions.Find(reactionName)
	if !ok {
		return "", &errors.NotFoundError{Resource: "reaction", ID: reactionName}
	}

	if err := schema.Validate(d.Fields(), actionConfig); err != nil {
		return "", fmt.Errorf("invalid action config: %w", err)
	}
	if err := schema.Validate(executor.Fields(), reactionConfig); err != nil {
		return "", fmt.Errorf("invalid reaction config: %w", err)
	}

	for _, prov := range requiredProviders(d.Provider(), executor.Provider()) {
		linked, err := e.links.HasLinked(ctx, userID, prov)
		if err != nil {
			return "", fmt.Errorf("failed to check provider link: %w", err)
		}
		if !linked {
			return "", &errors.NotLinkedError{Provider: prov, UserID: userID}
		}
	}

	if err := e.repo.EnsureAction(ctx, actionName, d.Provider()); err != nil {
		return "", err
	}
	if err := e.repo.EnsureReaction(ctx, reactionName, executor.Provider()); err != nil {
		return "", err
	}

	binding := &store.Binding{
		ID:             uuid.New().String(),
		UserID:         userID,
		Action:         actionName,
		Reaction:       reactionName,
		ActionConfig:   actionConfig,
		ReactionConfig: reactionConfig,
		Active:         true,
	}
	if err := e.repo.CreateBinding(ctx, binding); err != nil {
		return "", err
	}

	e.cache.put(binding)

	if err := e.startLifecycle(binding); err != nil {
		// The binding is persisted and will start on the next process
		// restart; report the degraded state rather than failing the call.
		e.logger.Error("binding persisted but lifecycle failed to start",
			slog.String("binding_id", binding.ID),
			slog.String("error", err.Error()))
	}

	e.logger.Info("created binding",
		slog.String("binding_id", binding.ID),
		slog.String("user_id", userID),
		slog.String("action", actionName),
		slog.String("reaction", reactionName))

	return binding.ID, nil
}

// Deactivate marks a binding inactive and stops its detection lifecycle.
func (e *Engine) Deactivate(ctx context.Context, bindingID string) error {
	if _, err := uuid.Parse(bindingID); err != nil {
		return &errors.ValidationError{Field: "binding_id", Message: "not a valid binding id"}
	}

	binding, err := e.repo.FindBinding(ctx, bindingID)
	if err != nil {
		return err
	}

	if err := e.repo.SetBindingActive(ctx, bindingID, false); err != nil {
		return err
	}

	e.cache.evict(bindingID)
	e.detectors.Stop(binding.Action, binding.UserID)

	e.logger.Info("deactivated binding",
		slog.String("binding_id", bindingID),
		slog.String("user_id", binding.UserID))

	return nil
}

// Restore restarts detection lifecycles for every binding still marked
// active in persisted state. Called once on process start; the watermark,
// not the process, carries "already seen" state, so nothing refires.
func (e *Engine) Restore(ctx context.Context) error {
	bindings, err := e.repo.FindActiveBindings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active bindings: %w", err)
	}

	restored := 0
	for _, b := range bindings {
		if err := e.startLifecycle(b); err != nil {
			e.logger.Error("failed to restore binding",
				slog.String("binding_id", b.ID),
				slog.String("error", err.Error()))
			continue
		}
		e.cache.put(b)
		restored++
	}

	e.logger.Info("restored bindings",
		slog.Int("restored", restored),
		slog.Int("total", len(bindings)))

	return nil
}

// Stop shuts down every running lifecycle.
func (e *Engine) Stop() {
	e.lifecycleCancel()
	e.detectors.StopAll()
}

// ListBindings returns all of a user's bindings, newest first.
func (e *Engine) ListBindings(ctx context.Context, userID string) ([]*store.Binding, error) {
	return e.repo.FindBindingsByUser(ctx, userID)
}

// FindBinding loads one binding, preferring the summary cache.
func (e *Engine) FindBinding(ctx context.Context, bindingID string) (*store.Binding, error) {
	if b, ok := e.cache.get(bindingID); ok {
		return b, nil
	}
	return e.repo.FindBinding(ctx, bindingID)
}

// ProviderGroup lists the actions or reactions one provider offers,
// together with the caller's link status for that provider.
type ProviderGroup struct {
	Provider string   `json:"provider"`
	Linked   bool     `json:"linked"`
	Names    []string `json:"names"`
}

// ListActions returns every registered action grouped by required provider,
// with the user's link status per provider.
func (e *Engine) ListActions(ctx context.Context, userID string) ([]ProviderGroup, error) {
	var pairs []namedProvider
	for _, d := range e.detectors.All() {
		pairs = append(pairs, namedProvider{name: d.Name(), provider: d.Provider()})
	}
	return e.groupByProvider(ctx, userID, pairs)
}

// ListReactions returns every registered reaction grouped by required
// provider, with the user's link status per provider.
func (e *Engine) ListReactions(ctx context.Context, userID string) ([]ProviderGroup, error) {
	var pairs []namedProvider
	for _, r := range e.reactions.All() {
		pairs = append(pairs, namedProvider{name: r.Name(), provider: r.Provider()})
	}
	return e.groupByProvider(ctx, userID, pairs)
}

// Placeholders returns the placeholder catalogue for an action.
func (e *Engine) Placeholders(actionName string) ([]detector.PlaceholderInfo, error) {
	infos, ok := e.detectors.Placeholders(actionName)
	if !ok {
		return nil, &errors.NotFoundError{Resource: "action", ID: actionName}
	}
	return infos, nil
}

type namedProvider struct {
	name     string
	provider string
}

func (e *Engine) groupByProvider(ctx context.Context, userID string, pairs []namedProvider) ([]ProviderGroup, error) {
	var groups []ProviderGroup
	index := make(map[string]int)

	for _, p := range pairs {
		i, ok := index[p.provider]
		if !ok {
			linked := true
			if p.provider != provider.None {
				var err error
				linked, err = e.links.HasLinked(ctx, userID, p.provider)
				if err != nil {
					return nil, fmt.Errorf("failed to check provider link: %w", err)
				}
			}
			i = len(groups)
			index[p.provider] = i
			groups = append(groups, ProviderGroup{Provider: p.provider, Linked: linked})
		}
		groups[i].Names = append(groups[i].Names, p.name)
	}

	return groups, nil
}

// findDetector resolves an action name to its detector.
func (e *Engine) findDetector(actionName string) (detector.Detector, bool) {
	for _, d := range e.detectors.All() {
		if d.Supports(actionName) {
			return d, true
		}
	}
	return nil, false
}

// startLifecycle begins detection for a binding, wiring the sink that fires
// its reaction.
func (e *Engine) startLifecycle(b *store.Binding) error {
	return e.detectors.Start(e.lifecycleCtx, b.Action, b.UserID, b.ActionConfig, e.makeSink(b))
}

// makeSink builds the per-binding sink: on a triggered event it substitutes
// the reaction configuration with the detected data, runs the executor, and
// appends an execution record. A failed reaction is recorded, never
// rethrown, and never rolls back the watermark: the event was observed once
// and will not be redetected.
func (e *Engine) makeSink(b *store.Binding) detector.Sink {
	logger := e.logger.With(
		slog.String("binding_id", b.ID),
		slog.String("user_id", b.UserID))

	return func(ev detector.Event) {
		switch ev.Status {
		case detector.Unchanged:
			return

		case detector.Unavailable:
			logger.Warn("detection unavailable",
				slog.String("action", b.Action))
			return

		case detector.Triggered:
			e.fire(b, ev, logger)
		}
	}
}

func (e *Engine) fire(b *store.Binding, ev detector.Event, logger *slog.Logger) {
	substituted, ok := placeholder.Substitute(b.ReactionConfig, ev.Data).(map[string]any)
	if !ok {
		// Substitute preserves structure, so this cannot happen for a
		// map configuration; guard anyway.
		substituted = b.ReactionConfig
	}

	// Lifecycle context, not a request context: the triggering call has
	// long since returned.
	ctx, cancel := context.WithTimeout(e.lifecycleCtx, 30*time.Second)
	defer cancel()

	record := &store.Execution{
		BindingID: b.ID,
		UserID:    b.UserID,
		Data:      ev.Data,
		Config:    substituted,
	}

	executor, ok := e.reactions.Find(b.Reaction)
	if !ok {
		record.Error = fmt.Sprintf("reaction %s is no longer registered", b.Reaction)
	} else {
		result, err := executor.Run(ctx, b.UserID, substituted)
		if err != nil {
			record.Error = err.Error()
			logger.Error("reaction failed",
				slog.String("reaction", b.Reaction),
				slog.String("error", err.Error()))
		} else {
			record.Result = result
			logger.Info("reaction executed",
				slog.String("reaction", b.Reaction))
		}
	}

	if err := e.repo.AppendExecution(ctx, record); err != nil {
		logger.Error("failed to record execution",
			slog.String("error", err.Error()))
	}
}

// requiredProviders deduplicates the non-default providers of an
// action/reaction pair.
func requiredProviders(providers ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range providers {
		if p == "" || p == provider.None || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
