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
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/internal/watermark"
	relayerrors "github.com/tombee/relay/pkg/errors"
)

// DiscordLiveMessage detects new messages on one Discord channel from a live
// event feed instead of a poll timer. Every delivered event still runs the
// watermark compare-and-advance, so gateway redeliveries and reconnect
// replays never double-trigger.
type DiscordLiveMessage struct {
	links  provider.Links
	feed   *provider.Feed
	store  watermark.Store
	logger *slog.Logger
}

// NewDiscordLiveMessage creates the discord_live_message detector.
func NewDiscordLiveMessage(links provider.Links, feed *provider.Feed, store watermark.Store, logger *slog.Logger) *DiscordLiveMessage {
	return &DiscordLiveMessage{
		links:  links,
		feed:   feed,
		store:  store,
		logger: logger.With(slog.String("action", "discord_live_message")),
	}
}

func (d *DiscordLiveMessage) Name() string { return "discord_live_message" }

func (d *DiscordLiveMessage) Supports(actionName string) bool { return actionName == d.Name() }

func (d *DiscordLiveMessage) Provider() string { return provider.Discord }

// Interval is zero: this detector is event-driven.
func (d *DiscordLiveMessage) Interval() time.Duration { return 0 }

func (d *DiscordLiveMessage) Fields() []schema.Field {
	return []schema.Field{
		{Name: "channel_id", Type: schema.String, Required: true, Description: "Channel to watch for live messages"},
	}
}

func (d *DiscordLiveMessage) Resource(config map[string]any) string {
	return configString(config, "channel_id")
}

// Detect evaluates preconditions only. There is nothing to fetch between
// events; new messages arrive through Listen.
func (d *DiscordLiveMessage) Detect(ctx context.Context, userID string, config map[string]any) Event {
	if configString(config, "channel_id") == "" {
		return Event{Status: Unavailable}
	}
	linked, err := d.links.HasLinked(ctx, userID, provider.Discord)
	if err != nil || !linked {
		return Event{Status: Unavailable}
	}
	return Event{Status: Unchanged}
}

// Listen subscribes to the live feed for the configured channel and emits a
// detection result per delivered event. The returned stop function cancels
// the subscription.
func (d *DiscordLiveMessage) Listen(ctx context.Context, userID string, config map[string]any, emit func(Event)) (func(), error) {
	channelID := configString(config, "channel_id")
	if channelID == "" {
		return nil, &relayerrors.ValidationError{Field: "channel_id", Message: "channel_id is required"}
	}

	events, cancel := d.feed.Subscribe(provider.Discord, channelID)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case fe, ok := <-events:
				if !ok {
					return
				}
				emit(d.handle(ctx, userID, channelID, fe))
			}
		}
	}()

	return cancel, nil
}

// handle runs one delivered feed event through the same watermark step a
// poll tick would use.
func (d *DiscordLiveMessage) handle(ctx context.Context, userID, channelID string, fe provider.FeedEvent) Event {
	linked, err := d.links.HasLinked(ctx, userID, provider.Discord)
	if err != nil || !linked {
		return Event{Status: Unavailable}
	}

	msg, err := decodeDiscordPayload(fe.Payload)
	if err != nil {
		d.logger.Warn("undecodable feed event",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	key := watermark.Key{Provider: provider.Discord, UserID: userID, Resource: channelID}
	obs := observation{
		marker: msg.Timestamp,
		data:   extractDiscordMessage(msg),
	}
	return advance(ctx, d.store, key, obs, d.logger)
}

func (d *DiscordLiveMessage) Placeholders() []PlaceholderInfo {
	return discordPlaceholders()
}

// decodeDiscordPayload converts a raw feed payload into the message shape
// the poll detector reads, so both paths share one extraction.
func decodeDiscordPayload(payload map[string]any) (discordMessage, error) {
	var msg discordMessage

	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}
