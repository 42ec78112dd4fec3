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

package reaction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/pkg/errors"
)

// DiscordPostMessage posts a message to a Discord channel.
type DiscordPostMessage struct {
	requester provider.Requester
}

// NewDiscordPostMessage creates the discord_post_message executor.
func NewDiscordPostMessage(requester provider.Requester) *DiscordPostMessage {
	return &DiscordPostMessage{requester: requester}
}

func (e *DiscordPostMessage) Name() string { return "discord_post_message" }

func (e *DiscordPostMessage) Supports(reactionName string) bool { return reactionName == e.Name() }

func (e *DiscordPostMessage) Provider() string { return provider.Discord }

func (e *DiscordPostMessage) Fields() []schema.Field {
	return []schema.Field{
		{Name: "channel_id", Type: schema.String, Required: true, Description: "Channel to post into"},
		{Name: "content", Type: schema.String, Required: true, Description: "Message text, may contain placeholders"},
	}
}

func (e *DiscordPostMessage) Run(ctx context.Context, userID string, config map[string]any) (string, error) {
	if err := schema.Validate(e.Fields(), config); err != nil {
		return "", err
	}

	channelID := configString(config, "channel_id")
	body, err := json.Marshal(map[string]string{
		"content": configString(config, "content"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	resp, err := e.requester.Do(ctx, provider.Discord, userID, &provider.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/v10/channels/%s/messages", channelID),
		Body:   body,
	})
	if err != nil {
		return "", &errors.ExecutionError{Reaction: e.Name(), Message: "request failed", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &errors.ExecutionError{
			Reaction: e.Name(),
			Message:  fmt.Sprintf("discord returned status %d", resp.StatusCode),
		}
	}

	var posted struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &posted); err == nil && posted.ID != "" {
		return fmt.Sprintf("posted message %s to channel %s", posted.ID, channelID), nil
	}
	return fmt.Sprintf("posted message to channel %s", channelID), nil
}
