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
	"testing"
	"time"

	"github.com/tombee/relay/pkg/errors"
)

func TestStaticAuthorizer_HasLinked(t *testing.T) {
	ctx := context.Background()
	auth := NewStaticAuthorizer(map[string]map[string]string{
		Spotify: {"u1": "tok-spotify"},
	})

	linked, err := auth.HasLinked(ctx, "u1", Spotify)
	if err != nil || !linked {
		t.Errorf("HasLinked(u1, spotify) = %v, %v; want true", linked, err)
	}

	linked, _ = auth.HasLinked(ctx, "u2", Spotify)
	if linked {
		t.Error("Expected u2 to be unlinked")
	}

	linked, _ = auth.HasLinked(ctx, "u1", Discord)
	if linked {
		t.Error("Expected unknown provider to be unlinked")
	}

	// The none provider is always linked.
	linked, _ = auth.HasLinked(ctx, "anyone", None)
	if !linked {
		t.Error("Expected none provider to always be linked")
	}
}

func TestStaticAuthorizer_Token(t *testing.T) {
	ctx := context.Background()
	auth := NewStaticAuthorizer(nil)
	auth.SetToken("u1", Discord, "bot-token")

	token, err := auth.Token(ctx, "u1", Discord)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if token.AccessToken != "bot-token" {
		t.Errorf("AccessToken = %q, want bot-token", token.AccessToken)
	}

	_, err = auth.Token(ctx, "u2", Discord)
	if !errors.IsNotLinked(err) {
		t.Errorf("Expected NotLinkedError for unprovisioned user, got %v", err)
	}
}

func TestFeedPublishSubscribe(t *testing.T) {
	feed := NewFeed()

	ch, cancel := feed.Subscribe(Discord, "chan-1")
	defer cancel()

	feed.Publish(FeedEvent{Provider: Discord, Resource: "chan-1", Payload: map[string]any{"id": "m1"}})
	feed.Publish(FeedEvent{Provider: Discord, Resource: "chan-2", Payload: map[string]any{"id": "other"}})

	select {
	case ev := <-ch:
		if ev.Payload["id"] != "m1" {
			t.Errorf("Payload id = %v, want m1", ev.Payload["id"])
		}
	case <-time.After(time.Second):
		t.Fatal("Expected event for subscribed resource")
	}

	select {
	case ev := <-ch:
		t.Errorf("Unexpected event for foreign resource: %v", ev)
	default:
	}
}

func TestFeedCancelIsIdempotent(t *testing.T) {
	feed := NewFeed()
	_, cancel := feed.Subscribe(Discord, "chan-1")

	cancel()
	cancel() // must not panic

	// Publishing after cancel must not panic either.
	feed.Publish(FeedEvent{Provider: Discord, Resource: "chan-1"})
}
