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

package engine

import (
	"sync"
	"time"

	"github.com/tombee/relay/internal/store"
)

// bindingCache holds active-binding summaries with a bounded TTL. It is a
// freshness hint for lookups; persisted state stays authoritative, so a
// stale miss just costs one repository read.
type bindingCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	binding   *store.Binding
	expiresAt time.Time
}

func newBindingCache(ttl time.Duration) *bindingCache {
	return &bindingCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *bindingCache) get(id string) (*store.Binding, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.evict(id)
		return nil, false
	}
	return entry.binding, true
}

func (c *bindingCache) put(b *store.Binding) {
	c.mu.Lock()
	c.entries[b.ID] = cacheEntry{
		binding:   b,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *bindingCache) evict(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}
