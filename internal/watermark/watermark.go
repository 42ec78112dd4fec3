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

// Package watermark stores the "last seen" marker per watched resource.
//
// A watermark is what lets a detector tell a genuinely new event apart from
// the first observation of existing state and from unchanged state, and what
// lets detection survive process restarts without re-firing history. The
// marker value is opaque to the store: detectors compare markers under their
// provider's own ordering (ISO-8601 timestamps or epoch-millisecond strings,
// both totally ordered by plain string comparison).
//
// The empty string is a valid stored value: it is the "empty source"
// sentinel, distinct from a key that has never been observed.
//
// Keys are disjoint per binding, so in correct operation a key has exactly
// one writer and the read-compare-write sequence needs no cross-call
// atomicity. Two bindings watching the same resource for the same user, or
// two relay instances sharing one store, are unsupported: the observed
// behavior is last write wins, which can miss or duplicate a trigger.
package watermark

import (
	"context"
	"fmt"
	"time"
)

// Key identifies one watched resource: the provider, the user on whose
// behalf it is watched, and a provider-specific resource discriminator
// (e.g. a channel id). Resource may be empty for single-resource providers.
type Key struct {
	Provider string
	UserID   string
	Resource string
}

// String renders the key in the canonical provider:user:resource form.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Provider, k.UserID, k.Resource)
}

// Store persists one marker per key.
//
// Get distinguishes "never observed" (ok=false) from the empty-string
// sentinel (value="", ok=true). Set with a zero ttl stores the marker
// without expiry; a positive ttl is a cache-policy hint, not a correctness
// dependency.
type Store interface {
	Get(ctx context.Context, key Key) (value string, ok bool, err error)
	Set(ctx context.Context, key Key, value string, ttl time.Duration) error
}
