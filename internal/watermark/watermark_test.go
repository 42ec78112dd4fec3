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

package watermark

import (
	"context"
	"testing"
	"time"
)

// storeUnderTest lets both implementations share the contract tests.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(SQLiteConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_NeverObserved(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		_, ok, err := store.Get(ctx, Key{Provider: "spotify", UserID: "u1"})
		if err != nil {
			t.Fatalf("[%s] Get failed: %v", name, err)
		}
		if ok {
			t.Errorf("[%s] Expected ok=false for never-observed key", name)
		}
	}
}

func TestStore_EmptySentinelIsDistinctFromAbsent(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		key := Key{Provider: "gmail", UserID: "u1", Resource: "inbox"}

		if err := store.Set(ctx, key, "", 0); err != nil {
			t.Fatalf("[%s] Set failed: %v", name, err)
		}

		value, ok, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("[%s] Get failed: %v", name, err)
		}
		if !ok {
			t.Errorf("[%s] Expected ok=true for empty sentinel", name)
		}
		if value != "" {
			t.Errorf("[%s] Expected empty sentinel value, got %q", name, value)
		}
	}
}

func TestStore_Advance(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		key := Key{Provider: "discord", UserID: "u1", Resource: "chan-1"}

		if err := store.Set(ctx, key, "2023-12-10T15:00:00.000Z", 0); err != nil {
			t.Fatalf("[%s] Set failed: %v", name, err)
		}
		if err := store.Set(ctx, key, "2023-12-10T16:00:00.000Z", 0); err != nil {
			t.Fatalf("[%s] Set failed: %v", name, err)
		}

		value, ok, err := store.Get(ctx, key)
		if err != nil || !ok {
			t.Fatalf("[%s] Get failed: %v ok=%v", name, err, ok)
		}
		if value != "2023-12-10T16:00:00.000Z" {
			t.Errorf("[%s] value = %q, want advanced marker", name, value)
		}
	}
}

func TestStore_KeysAreDisjoint(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		k1 := Key{Provider: "discord", UserID: "u1", Resource: "chan-1"}
		k2 := Key{Provider: "discord", UserID: "u1", Resource: "chan-2"}
		k3 := Key{Provider: "discord", UserID: "u2", Resource: "chan-1"}

		store.Set(ctx, k1, "a", 0)
		store.Set(ctx, k2, "b", 0)
		store.Set(ctx, k3, "c", 0)

		for key, want := range map[Key]string{k1: "a", k2: "b", k3: "c"} {
			value, ok, err := store.Get(ctx, key)
			if err != nil || !ok {
				t.Fatalf("[%s] Get(%v) failed: %v ok=%v", name, key, err, ok)
			}
			if value != want {
				t.Errorf("[%s] Get(%v) = %q, want %q", name, key, value, want)
			}
		}
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := Key{Provider: "spotify", UserID: "u1"}

	if err := store.Set(ctx, key, "marker", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, ok, _ := store.Get(ctx, key); !ok {
		t.Fatal("Expected entry before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := store.Get(ctx, key); ok {
		t.Error("Expected entry to expire after TTL")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/watermarks.db"
	key := Key{Provider: "spotify", UserID: "u1"}

	store, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Set(ctx, key, "2024-01-01T00:00:00Z", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get after reopen failed: %v ok=%v", err, ok)
	}
	if value != "2024-01-01T00:00:00Z" {
		t.Errorf("value = %q, want persisted marker", value)
	}
}
