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

package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/tombee/relay/internal/schema"
)

// MinInterval is the floor for poll intervals. Detectors declaring anything
// shorter are clamped to avoid hammering provider APIs.
const MinInterval = 5 * time.Second

// Sink receives every detection result a lifecycle produces.
type Sink func(Event)

// lifecycleKey identifies one running detection lifecycle. A user may run
// several lifecycles for the same action against different resources.
type lifecycleKey struct {
	action   string
	userID   string
	resource string
}

func (k lifecycleKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.action, k.userID, k.resource)
}

// lifecycle tracks one running timer or stream subscription.
//
// mu serializes every tick against Stop: a tick holds it for the full
// detect+sink sequence, and Stop acquires it before marking the lifecycle
// stopped, so once Stop returns no further sink call or watermark write can
// happen for this lifecycle.
type lifecycle struct {
	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	timer   *time.Timer // nil for push lifecycles
	unsub   func()      // nil for pull lifecycles
}

// Registry holds all registered detectors and owns the per-binding
// scheduling machinery. Pull detectors get a jittered recurring timer; push
// detectors get a stream subscription. Both feed results to the caller's
// sink through the same stop-safe path.
type Registry struct {
	logger  *slog.Logger
	metrics *Metrics

	mu         sync.RWMutex
	detectors  []Detector
	lifecycles map[lifecycleKey]*lifecycle
	stopped    bool
}

// NewRegistry creates an empty detector registry. metrics may be nil.
func NewRegistry(logger *slog.Logger, metrics *Metrics) *Registry {
	return &Registry{
		logger:     logger,
		metrics:    metrics,
		lifecycles: make(map[lifecycleKey]*lifecycle),
	}
}

// Register adds a detector. Registration order matters: the first registered
// detector supporting an action name wins, later ones never replace it.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.detectors = append(r.detectors, d)
	r.logger.Info("registered detector", slog.String("action", d.Name()))
}

// Supports reports whether any registered detector handles the action name.
func (r *Registry) Supports(actionName string) bool {
	_, ok := r.find(actionName)
	return ok
}

// ProviderFor returns the provider key an action requires.
func (r *Registry) ProviderFor(actionName string) (string, bool) {
	d, ok := r.find(actionName)
	if !ok {
		return "", false
	}
	return d.Provider(), true
}

// FieldsFor returns the configuration schema for an action name.
func (r *Registry) FieldsFor(actionName string) ([]schema.Field, bool) {
	d, ok := r.find(actionName)
	if !ok {
		return nil, false
	}
	return d.Fields(), true
}

// Placeholders returns the placeholder catalogue for an action name.
func (r *Registry) Placeholders(actionName string) ([]PlaceholderInfo, bool) {
	d, ok := r.find(actionName)
	if !ok {
		return nil, false
	}
	return d.Placeholders(), true
}

// All returns every registered detector in registration order.
func (r *Registry) All() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Detector, len(r.detectors))
	copy(out, r.detectors)
	return out
}

func (r *Registry) find(actionName string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.detectors {
		if d.Supports(actionName) {
			return d, true
		}
	}
	return nil, false
}

// Start begins a detection lifecycle for (actionName, userID) with the given
// configuration, forwarding every result to sink. Starting an already-running
// (action, user, resource) key is a no-op.
func (r *Registry) Start(ctx context.Context, actionName, userID string, config map[string]any, sink Sink) error {
	d, ok := r.find(actionName)
	if !ok {
		return fmt.Errorf("no detector registered for action %s", actionName)
	}

	key := lifecycleKey{action: actionName, userID: userID, resource: d.Resource(config)}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("registry is stopped")
	}
	if _, exists := r.lifecycles[key]; exists {
		r.mu.Unlock()
		return nil
	}

	lcCtx, cancel := context.WithCancel(ctx)
	lc := &lifecycle{cancel: cancel}
	r.lifecycles[key] = lc
	count := len(r.lifecycles)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveLifecycles(count)
	}

	if pd, isPush := d.(PushDetector); isPush {
		if err := r.startPush(lcCtx, lc, key, pd, userID, config, sink); err != nil {
			r.remove(key)
			cancel()
			return err
		}
	} else {
		r.startPull(lcCtx, lc, key, d, userID, config, sink)
	}

	r.logger.Info("started detection lifecycle",
		slog.String("action", actionName),
		slog.String("user_id", userID),
		slog.String("resource", key.resource))

	return nil
}

// Stop cancels every lifecycle keyed by (actionName, userID), across all
// resources. It returns only after any in-flight tick for those lifecycles
// has completed; no sink call or watermark write follows.
func (r *Registry) Stop(actionName, userID string) {
	r.mu.Lock()
	var stopping []*lifecycle
	for key, lc := range r.lifecycles {
		if key.action == actionName && key.userID == userID {
			stopping = append(stopping, lc)
			delete(r.lifecycles, key)
		}
	}
	count := len(r.lifecycles)
	r.mu.Unlock()

	for _, lc := range stopping {
		lc.mu.Lock()
		lc.stopped = true
		lc.mu.Unlock()
		lc.cancel()
		if lc.timer != nil {
			lc.timer.Stop()
		}
		if lc.unsub != nil {
			lc.unsub()
		}
	}

	if len(stopping) > 0 {
		if r.metrics != nil {
			r.metrics.SetActiveLifecycles(count)
		}
		r.logger.Info("stopped detection lifecycles",
			slog.String("action", actionName),
			slog.String("user_id", userID),
			slog.Int("count", len(stopping)))
	}
}

// StopAll shuts the registry down. No lifecycle can be started afterwards.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.stopped = true
	lifecycles := r.lifecycles
	r.lifecycles = make(map[lifecycleKey]*lifecycle)
	r.mu.Unlock()

	for _, lc := range lifecycles {
		lc.mu.Lock()
		lc.stopped = true
		lc.mu.Unlock()
		lc.cancel()
		if lc.timer != nil {
			lc.timer.Stop()
		}
		if lc.unsub != nil {
			lc.unsub()
		}
	}

	if r.metrics != nil {
		r.metrics.SetActiveLifecycles(0)
	}
}

// Running returns the number of live lifecycles.
func (r *Registry) Running() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lifecycles)
}

func (r *Registry) remove(key lifecycleKey) {
	r.mu.Lock()
	delete(r.lifecycles, key)
	r.mu.Unlock()
}

// startPull creates a jittered recurring timer for a pull detector.
func (r *Registry) startPull(ctx context.Context, lc *lifecycle, key lifecycleKey, d Detector, userID string, config map[string]any, sink Sink) {
	interval := d.Interval()
	if interval < MinInterval {
		interval = MinInterval
	}

	lc.timer = time.NewTimer(addJitter(interval))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-lc.timer.C:
				if !r.tick(ctx, lc, key, d, userID, config, sink) {
					return
				}
				lc.timer.Reset(addJitter(interval))
			}
		}
	}()
}

// tick runs one detect+sink cycle under the lifecycle mutex. Returns false
// when the lifecycle has been stopped.
func (r *Registry) tick(ctx context.Context, lc *lifecycle, key lifecycleKey, d Detector, userID string, config map[string]any, sink Sink) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.stopped {
		return false
	}

	start := time.Now()
	ev := r.safeDetect(ctx, key, d, userID, config)
	if r.metrics != nil {
		r.metrics.RecordTick(ctx, key.action, ev.Status, time.Since(start))
	}

	r.deliver(key, ev, sink)
	return true
}

// startPush subscribes a push detector to its stream. Each delivered event
// runs through the same stop-safe path as a pull tick.
func (r *Registry) startPush(ctx context.Context, lc *lifecycle, key lifecycleKey, pd PushDetector, userID string, config map[string]any, sink Sink) error {
	stop, err := pd.Listen(ctx, userID, config, func(ev Event) {
		lc.mu.Lock()
		defer lc.mu.Unlock()

		if lc.stopped {
			return
		}
		if r.metrics != nil {
			r.metrics.RecordTick(ctx, key.action, ev.Status, 0)
		}
		r.deliver(key, ev, sink)
	})
	if err != nil {
		return fmt.Errorf("failed to start stream for %s: %w", key.action, err)
	}

	lc.unsub = stop
	return nil
}

// safeDetect invokes the detector with panic containment. A panicking
// detector loses one cycle, never the scheduler.
func (r *Registry) safeDetect(ctx context.Context, key lifecycleKey, d Detector, userID string, config map[string]any) (ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("detector panicked",
				slog.String("lifecycle", key.String()),
				slog.Any("panic", p))
			ev = Event{Status: Unchanged}
		}
	}()

	return d.Detect(ctx, userID, config)
}

// deliver forwards an event to the sink with panic containment. A sink
// failure is terminal to this one cycle only.
func (r *Registry) deliver(key lifecycleKey, ev Event, sink Sink) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("sink panicked",
				slog.String("lifecycle", key.String()),
				slog.Any("panic", p))
		}
	}()

	sink(ev)
}

// addJitter spreads a duration by ±10% so lifecycles sharing an interval
// do not poll in lockstep.
func addJitter(d time.Duration) time.Duration {
	jitter := (rand.Float64()*2 - 1) * float64(d) * 0.1
	return d + time.Duration(jitter)
}
