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
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/internal/watermark"
)

// DiscordNewMessage detects new messages posted to one Discord channel.
// The channel_id configuration field selects the channel; the watermark is
// the message's ISO-8601 timestamp.
type DiscordNewMessage struct {
	links     provider.Links
	requester provider.Requester
	store     watermark.Store
	logger    *slog.Logger
}

// NewDiscordNewMessage creates the discord_new_message detector.
func NewDiscordNewMessage(links provider.Links, requester provider.Requester, store watermark.Store, logger *slog.Logger) *DiscordNewMessage {
	return &DiscordNewMessage{
		links:     links,
		requester: requester,
		store:     store,
		logger:    logger.With(slog.String("action", "discord_new_message")),
	}
}

func (d *DiscordNewMessage) Name() string { return "discord_new_message" }

func (d *DiscordNewMessage) Supports(actionName string) bool { return actionName == d.Name() }

func (d *DiscordNewMessage) Provider() string { return provider.Discord }

// Interval is short: channel chatter is the latency-sensitive case, and the
// Discord API tolerates it at one channel per binding.
func (d *DiscordNewMessage) Interval() time.Duration { return 5 * time.Second }

func (d *DiscordNewMessage) Fields() []schema.Field {
	return []schema.Field{
		{Name: "channel_id", Type: schema.String, Required: true, Description: "Channel to watch for new messages"},
	}
}

func (d *DiscordNewMessage) Resource(config map[string]any) string {
	return configString(config, "channel_id")
}

func (d *DiscordNewMessage) Detect(ctx context.Context, userID string, config map[string]any) Event {
	channelID := configString(config, "channel_id")
	if channelID == "" {
		return Event{Status: Unavailable}
	}

	linked, err := d.links.HasLinked(ctx, userID, provider.Discord)
	if err != nil || !linked {
		return Event{Status: Unavailable}
	}

	obs, err := d.fetchLatest(ctx, userID, channelID)
	if err != nil {
		d.logger.Warn("poll failed",
			slog.String("user_id", userID),
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	key := watermark.Key{Provider: provider.Discord, UserID: userID, Resource: channelID}
	return advance(ctx, d.store, key, obs, d.logger)
}

func (d *DiscordNewMessage) fetchLatest(ctx context.Context, userID, channelID string) (observation, error) {
	resp, err := d.requester.Do(ctx, provider.Discord, userID, &provider.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/api/v10/channels/%s/messages", channelID),
		Query:  url.Values{"limit": {"1"}},
	})
	if err != nil {
		return observation{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return observation{}, fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	var messages []discordMessage
	if err := json.Unmarshal(resp.Body, &messages); err != nil {
		return observation{}, fmt.Errorf("failed to parse channel messages: %w", err)
	}

	if len(messages) == 0 {
		return observation{empty: true}, nil
	}

	msg := messages[0]
	return observation{
		marker: msg.Timestamp,
		data:   extractDiscordMessage(msg),
	}, nil
}

// extractDiscordMessage maps one channel message to the shared Discord
// placeholder vocabulary. Used by both the polled and the live detector.
func extractDiscordMessage(msg discordMessage) map[string]string {
	author := msg.Author.Username
	if author == "" {
		author = "Unknown"
	}

	hasMentions := "false"
	if len(msg.Mentions) > 0 {
		hasMentions = "true"
	}

	return map[string]string{
		"DISCORD_MESSAGE_ID":       msg.ID,
		"DISCORD_MESSAGE_CONTENT":  msg.Content,
		"DISCORD_AUTHOR_USERNAME":  author,
		"DISCORD_TIMESTAMP":        msg.Timestamp,
		"DISCORD_EDITED_TIMESTAMP": msg.EditedTimestamp,
		"DISCORD_CHANNEL_ID":       msg.ChannelID,
		"DISCORD_GUILD_ID":         msg.GuildID,
		"DISCORD_HAS_MENTIONS":     hasMentions,
		"DISCORD_ATTACHMENT_COUNT": strconv.Itoa(len(msg.Attachments)),
		"DISCORD_EMBED_COUNT":      strconv.Itoa(len(msg.Embeds)),
	}
}

func discordPlaceholders() []PlaceholderInfo {
	return []PlaceholderInfo{
		{Key: "DISCORD_MESSAGE_ID", Description: "Message identifier", Example: "1183425678901234567"},
		{Key: "DISCORD_MESSAGE_CONTENT", Description: "Message text content", Example: "hello world"},
		{Key: "DISCORD_AUTHOR_USERNAME", Description: "Author's username", Example: "alice"},
		{Key: "DISCORD_TIMESTAMP", Description: "When the message was posted (ISO-8601)", Example: "2023-12-10T16:00:00.000Z"},
		{Key: "DISCORD_EDITED_TIMESTAMP", Description: "When the message was last edited, empty if never", Example: ""},
		{Key: "DISCORD_CHANNEL_ID", Description: "Channel the message was posted in", Example: "1183425000000000000"},
		{Key: "DISCORD_GUILD_ID", Description: "Guild the channel belongs to, empty for DMs", Example: "1183424000000000000"},
		{Key: "DISCORD_HAS_MENTIONS", Description: "Whether the message mentions anyone", Example: "false"},
		{Key: "DISCORD_ATTACHMENT_COUNT", Description: "Number of attachments", Example: "0"},
		{Key: "DISCORD_EMBED_COUNT", Description: "Number of embeds", Example: "0"},
	}
}

func (d *DiscordNewMessage) Placeholders() []PlaceholderInfo {
	return discordPlaceholders()
}

// discordMessage is the subset of the Discord message object the detectors
// read. The live detector decodes gateway payloads into the same shape.
type discordMessage struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	Timestamp       string `json:"timestamp"`
	EditedTimestamp string `json:"edited_timestamp"`
	ChannelID       string `json:"channel_id"`
	GuildID         string `json:"guild_id"`
	Author          struct {
		Username string `json:"username"`
	} `json:"author"`
	Mentions    []json.RawMessage `json:"mentions"`
	Attachments []json.RawMessage `json:"attachments"`
	Embeds      []json.RawMessage `json:"embeds"`
}
