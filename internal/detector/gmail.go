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
	"strings"
	"time"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/internal/watermark"
)

// GmailNewMessage detects new messages arriving in the user's inbox.
// The watermark is the message's internalDate, an epoch-millisecond string;
// fixed-width decimal strings order correctly under string comparison.
type GmailNewMessage struct {
	links     provider.Links
	requester provider.Requester
	store     watermark.Store
	logger    *slog.Logger
}

// NewGmailNewMessage creates the gmail_new_message detector.
func NewGmailNewMessage(links provider.Links, requester provider.Requester, store watermark.Store, logger *slog.Logger) *GmailNewMessage {
	return &GmailNewMessage{
		links:     links,
		requester: requester,
		store:     store,
		logger:    logger.With(slog.String("action", "gmail_new_message")),
	}
}

func (d *GmailNewMessage) Name() string { return "gmail_new_message" }

func (d *GmailNewMessage) Supports(actionName string) bool { return actionName == d.Name() }

func (d *GmailNewMessage) Provider() string { return provider.Gmail }

func (d *GmailNewMessage) Interval() time.Duration { return 30 * time.Second }

func (d *GmailNewMessage) Fields() []schema.Field { return nil }

// Resource is fixed: the detector watches the INBOX label only.
func (d *GmailNewMessage) Resource(config map[string]any) string { return "inbox" }

func (d *GmailNewMessage) Detect(ctx context.Context, userID string, config map[string]any) Event {
	linked, err := d.links.HasLinked(ctx, userID, provider.Gmail)
	if err != nil || !linked {
		return Event{Status: Unavailable}
	}

	obs, err := d.fetchLatest(ctx, userID)
	if err != nil {
		d.logger.Warn("poll failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	key := watermark.Key{Provider: provider.Gmail, UserID: userID, Resource: d.Resource(config)}
	return advance(ctx, d.store, key, obs, d.logger)
}

// fetchLatest lists the single most recent inbox message id, then fetches
// its metadata. Two calls because the list endpoint returns ids only.
func (d *GmailNewMessage) fetchLatest(ctx context.Context, userID string) (observation, error) {
	resp, err := d.requester.Do(ctx, provider.Gmail, userID, &provider.Request{
		Method: http.MethodGet,
		Path:   "/gmail/v1/users/me/messages",
		Query: url.Values{
			"maxResults": {"1"},
			"labelIds":   {"INBOX"},
		},
	})
	if err != nil {
		return observation{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return observation{}, fmt.Errorf("gmail API returned status %d", resp.StatusCode)
	}

	var list gmailMessageListResponse
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return observation{}, fmt.Errorf("failed to parse message list: %w", err)
	}

	if len(list.Messages) == 0 {
		return observation{empty: true}, nil
	}

	msg, err := d.fetchMessage(ctx, userID, list.Messages[0].ID)
	if err != nil {
		return observation{}, err
	}

	return observation{
		marker: msg.InternalDate,
		data:   d.extract(msg),
	}, nil
}

func (d *GmailNewMessage) fetchMessage(ctx context.Context, userID, id string) (*gmailMessage, error) {
	resp, err := d.requester.Do(ctx, provider.Gmail, userID, &provider.Request{
		Method: http.MethodGet,
		Path:   "/gmail/v1/users/me/messages/" + id,
		Query: url.Values{
			"format":          {"metadata"},
			"metadataHeaders": {"Subject", "From", "To", "Date"},
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gmail API returned status %d for message %s", resp.StatusCode, id)
	}

	var msg gmailMessage
	if err := json.Unmarshal(resp.Body, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}
	return &msg, nil
}

func (d *GmailNewMessage) extract(msg *gmailMessage) map[string]string {
	data := map[string]string{
		"GMAIL_MESSAGE_ID": msg.ID,
		"GMAIL_SUBJECT":    "(no subject)",
		"GMAIL_FROM":       "Unknown",
		"GMAIL_TO":         "",
		"GMAIL_SNIPPET":    msg.Snippet,
		"GMAIL_DATE":       msg.InternalDate,
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			if h.Value != "" {
				data["GMAIL_SUBJECT"] = h.Value
			}
		case "from":
			if h.Value != "" {
				data["GMAIL_FROM"] = h.Value
			}
		case "to":
			data["GMAIL_TO"] = h.Value
		}
	}

	return data
}

func (d *GmailNewMessage) Placeholders() []PlaceholderInfo {
	return []PlaceholderInfo{
		{Key: "GMAIL_MESSAGE_ID", Description: "Gmail message identifier", Example: "18c4f2a9b3d1e0f7"},
		{Key: "GMAIL_SUBJECT", Description: "Message subject line", Example: "Weekly report"},
		{Key: "GMAIL_FROM", Description: "Sender address", Example: "alice@example.com"},
		{Key: "GMAIL_TO", Description: "Recipient address", Example: "bob@example.com"},
		{Key: "GMAIL_SNIPPET", Description: "Short plain-text preview of the body", Example: "Hi Bob, attached is the..."},
		{Key: "GMAIL_DATE", Description: "Arrival time as epoch milliseconds", Example: "1702222200000"},
	}
}

// Gmail API response types

type gmailMessageListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type gmailMessage struct {
	ID           string `json:"id"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}
