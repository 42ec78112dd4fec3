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

// SlackPostMessage posts a message to a Slack channel. Slack reports API
// errors inside a 200 response, so the ok flag is checked, not just the
// status code.
type SlackPostMessage struct {
	requester provider.Requester
}

// NewSlackPostMessage creates the slack_post_message executor.
func NewSlackPostMessage(requester provider.Requester) *SlackPostMessage {
	return &SlackPostMessage{requester: requester}
}

func (e *SlackPostMessage) Name() string { return "slack_post_message" }

func (e *SlackPostMessage) Supports(reactionName string) bool { return reactionName == e.Name() }

func (e *SlackPostMessage) Provider() string { return provider.Slack }

func (e *SlackPostMessage) Fields() []schema.Field {
	return []schema.Field{
		{Name: "channel", Type: schema.String, Required: true, Description: "Channel name or id to post into"},
		{Name: "text", Type: schema.String, Required: true, Description: "Message text, may contain placeholders"},
	}
}

func (e *SlackPostMessage) Run(ctx context.Context, userID string, config map[string]any) (string, error) {
	if err := schema.Validate(e.Fields(), config); err != nil {
		return "", err
	}

	channel := configString(config, "channel")
	body, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    configString(config, "text"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	resp, err := e.requester.Do(ctx, provider.Slack, userID, &provider.Request{
		Method: http.MethodPost,
		Path:   "/api/chat.postMessage",
		Body:   body,
	})
	if err != nil {
		return "", &errors.ExecutionError{Reaction: e.Name(), Message: "request failed", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &errors.ExecutionError{
			Reaction: e.Name(),
			Message:  fmt.Sprintf("slack returned status %d", resp.StatusCode),
		}
	}

	var result struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return "", &errors.ExecutionError{Reaction: e.Name(), Message: "unreadable slack response", Cause: err}
	}
	if !result.OK {
		return "", &errors.ExecutionError{
			Reaction: e.Name(),
			Message:  fmt.Sprintf("slack API error: %s", result.Error),
		}
	}

	return fmt.Sprintf("posted message %s to %s", result.TS, channel), nil
}
