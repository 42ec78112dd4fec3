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
	"fmt"
	"sync"
)

// FeedEvent is one inbound push event from a provider's live stream
// (gateway connection, webhook receiver). Payload shape is provider-owned.
type FeedEvent struct {
	Provider string
	Resource string
	Payload  map[string]any
}

// Feed fans inbound push events out to subscribers keyed by
// (provider, resource). Push sources may redeliver; de-duplication is the
// subscriber's concern (detectors run the same watermark protocol on every
// delivered event).
type Feed struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan FeedEvent
	next int
}

// NewFeed creates an empty event feed.
func NewFeed() *Feed {
	return &Feed{
		subs: make(map[string]map[int]chan FeedEvent),
	}
}

func feedKey(provider, resource string) string {
	return fmt.Sprintf("%s:%s", provider, resource)
}

// Subscribe registers interest in events for (provider, resource).
// The returned cancel function removes the subscription and closes the
// channel; it is safe to call more than once.
func (f *Feed) Subscribe(provider, resource string) (<-chan FeedEvent, func()) {
	key := feedKey(provider, resource)
	ch := make(chan FeedEvent, 16)

	f.mu.Lock()
	if f.subs[key] == nil {
		f.subs[key] = make(map[int]chan FeedEvent)
	}
	id := f.next
	f.next++
	f.subs[key][id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if subs, ok := f.subs[key]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(f.subs, key)
				}
			}
			f.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber of its (provider, resource)
// key. Delivery is non-blocking: a subscriber that has fallen 16 events
// behind misses the event and catches up on its next poll-equivalent tick.
func (f *Feed) Publish(ev FeedEvent) {
	key := feedKey(ev.Provider, ev.Resource)

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subs[key] {
		select {
		case ch <- ev:
		default:
		}
	}
}
