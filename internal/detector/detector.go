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

// Package detector implements trigger detection against external providers.
//
// A detector encapsulates how to ask one external source "is there something
// new for this user". Detection is watermark-based: each (provider, user,
// resource) tuple carries one last-seen marker, and a check fires only when
// the source's most recent item is strictly newer than that marker. This is
// what makes detection idempotent across process restarts and redeliveries.
package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/internal/watermark"
)

// Status is the tri-state outcome of one detection check.
type Status int

const (
	// Triggered means a genuinely new event was observed. The watermark has
	// already advanced past it; the event's data must be acted on now or lost.
	Triggered Status = 0

	// Unchanged means nothing new: same item as last time, a first
	// observation of pre-existing state, or a transient provider failure
	// that the next cycle will re-check.
	Unchanged Status = 1

	// Unavailable means the check could not run at all: the user has not
	// linked the provider, or required configuration is missing.
	Unavailable Status = -1
)

func (s Status) String() string {
	switch s {
	case Triggered:
		return "triggered"
	case Unchanged:
		return "unchanged"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Event is the result of one detection check. Data is only populated when
// Status is Triggered; it is a flat placeholder map keyed by the detector's
// documented vocabulary.
type Event struct {
	Status Status
	Data   map[string]string
}

// PlaceholderInfo documents one key a detector exposes in its event data.
type PlaceholderInfo struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Example     string `json:"example"`
}

// Detector is implemented once per supported action name.
type Detector interface {
	// Name returns the action name this detector handles.
	Name() string

	// Supports reports whether this detector handles the given action name.
	Supports(actionName string) bool

	// Provider returns the provider key this detector needs authorization
	// for.
	Provider() string

	// Interval returns the polling interval for pull detectors.
	// Push detectors return zero.
	Interval() time.Duration

	// Fields returns the static schema for the detector's action
	// configuration. Detectors needing no configuration return nil.
	Fields() []schema.Field

	// Resource derives the watched resource discriminator from an action
	// configuration (e.g. a channel id). Detectors watching a fixed resource
	// return a constant.
	Resource(config map[string]any) string

	// Detect performs one check for the user. It never returns an error:
	// transient provider failures are absorbed as Unchanged so the next
	// cycle re-checks, and missing authorization or configuration is
	// reported as Unavailable.
	Detect(ctx context.Context, userID string, config map[string]any) Event

	// Placeholders returns the static catalogue of keys this detector
	// populates in triggered event data.
	Placeholders() []PlaceholderInfo
}

// PushDetector is implemented by detectors fed from a live event stream
// instead of a poll timer. Listen subscribes to the stream for the configured
// resource and calls emit with a detection result for every delivered event.
// Push sources may redeliver, so each event still runs the watermark
// compare-and-advance before emitting Triggered.
type PushDetector interface {
	Detector

	Listen(ctx context.Context, userID string, config map[string]any, emit func(Event)) (stop func(), err error)
}

// observation is what a detector saw when it asked the provider for the
// single most recent item.
type observation struct {
	// empty means the source currently has zero items.
	empty bool

	// marker is the current item's ordering marker: an ISO-8601 timestamp
	// or an epoch-millisecond string, compared as strings.
	marker string

	// data is the item's extracted placeholder map.
	data map[string]string
}

// advance runs the shared watermark step for one observation and decides the
// detection outcome:
//
//   - empty source: record the empty-string sentinel, report Unchanged
//   - never observed before: record the marker, report Unchanged (an item
//     that already existed when monitoring began must not trigger)
//   - sentinel -> item: a source that was empty now has one, trigger
//   - marker strictly newer than the stored watermark: trigger
//   - otherwise: Unchanged, watermark untouched
//
// Store failures are absorbed as Unchanged; the next cycle re-checks.
func advance(ctx context.Context, store watermark.Store, key watermark.Key, obs observation, logger *slog.Logger) Event {
	prev, seen, err := store.Get(ctx, key)
	if err != nil {
		logger.Warn("watermark read failed, skipping cycle",
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	if obs.empty {
		if err := store.Set(ctx, key, "", 0); err != nil {
			logger.Warn("failed to record empty-source sentinel",
				slog.String("key", key.String()),
				slog.String("error", err.Error()))
		}
		return Event{Status: Unchanged}
	}

	if !seen {
		if err := store.Set(ctx, key, obs.marker, 0); err != nil {
			logger.Warn("failed to establish watermark",
				slog.String("key", key.String()),
				slog.String("error", err.Error()))
		}
		return Event{Status: Unchanged}
	}

	if prev != "" && obs.marker <= prev {
		return Event{Status: Unchanged}
	}

	// Either the source went empty -> nonempty, or the item is strictly
	// newer. Advance first so a crash mid-dispatch cannot refire it.
	if err := store.Set(ctx, key, obs.marker, 0); err != nil {
		logger.Warn("failed to advance watermark, suppressing trigger",
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	return Event{Status: Triggered, Data: obs.data}
}

// configString extracts a string-valued configuration field, tolerating
// untyped decoding.
func configString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	switch v := config[key].(type) {
	case string:
		return v
	default:
		return ""
	}
}
