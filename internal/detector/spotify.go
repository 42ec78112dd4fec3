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

// SpotifyLikes detects newly liked tracks in the user's Spotify library.
// The watermark is the added_at timestamp of the most recent like.
type SpotifyLikes struct {
	links     provider.Links
	requester provider.Requester
	store     watermark.Store
	logger    *slog.Logger
}

// NewSpotifyLikes creates the spotify_has_likes detector.
func NewSpotifyLikes(links provider.Links, requester provider.Requester, store watermark.Store, logger *slog.Logger) *SpotifyLikes {
	return &SpotifyLikes{
		links:     links,
		requester: requester,
		store:     store,
		logger:    logger.With(slog.String("action", "spotify_has_likes")),
	}
}

func (d *SpotifyLikes) Name() string { return "spotify_has_likes" }

func (d *SpotifyLikes) Supports(actionName string) bool { return actionName == d.Name() }

func (d *SpotifyLikes) Provider() string { return provider.Spotify }

func (d *SpotifyLikes) Interval() time.Duration { return 20 * time.Second }

func (d *SpotifyLikes) Fields() []schema.Field { return nil }

// Resource is fixed: a user has exactly one liked-tracks library.
func (d *SpotifyLikes) Resource(config map[string]any) string { return "liked-tracks" }

func (d *SpotifyLikes) Detect(ctx context.Context, userID string, config map[string]any) Event {
	linked, err := d.links.HasLinked(ctx, userID, provider.Spotify)
	if err != nil || !linked {
		return Event{Status: Unavailable}
	}

	obs, err := d.fetchLatest(ctx, userID)
	if err != nil {
		d.logger.Warn("poll failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	key := watermark.Key{Provider: provider.Spotify, UserID: userID, Resource: d.Resource(config)}
	return advance(ctx, d.store, key, obs, d.logger)
}

// fetchLatest asks the saved-tracks endpoint for the single most recently
// liked track.
func (d *SpotifyLikes) fetchLatest(ctx context.Context, userID string) (observation, error) {
	resp, err := d.requester.Do(ctx, provider.Spotify, userID, &provider.Request{
		Method: http.MethodGet,
		Path:   "/v1/me/tracks",
		Query:  url.Values{"limit": {"1"}},
	})
	if err != nil {
		return observation{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return observation{}, fmt.Errorf("spotify API returned status %d", resp.StatusCode)
	}

	var tracks spotifySavedTracksResponse
	if err := json.Unmarshal(resp.Body, &tracks); err != nil {
		return observation{}, fmt.Errorf("failed to parse saved tracks: %w", err)
	}

	if len(tracks.Items) == 0 {
		return observation{empty: true}, nil
	}

	item := tracks.Items[0]
	return observation{
		marker: item.AddedAt,
		data:   d.extract(item),
	}, nil
}

// extract maps one saved track to the detector's placeholder vocabulary.
// Missing optional fields degrade to documented defaults rather than
// omitting the key.
func (d *SpotifyLikes) extract(item spotifySavedTrack) map[string]string {
	artist := "Unknown"
	if len(item.Track.Artists) > 0 && item.Track.Artists[0].Name != "" {
		names := make([]string, 0, len(item.Track.Artists))
		for _, a := range item.Track.Artists {
			names = append(names, a.Name)
		}
		artist = strings.Join(names, ", ")
	}

	album := item.Track.Album.Name
	if album == "" {
		album = "Unknown"
	}

	name := item.Track.Name
	if name == "" {
		name = "Unknown"
	}

	duration := "0:00"
	if item.Track.DurationMS > 0 {
		total := item.Track.DurationMS / 1000
		duration = fmt.Sprintf("%d:%02d", total/60, total%60)
	}

	return map[string]string{
		"SPOTIFY_TRACK_NAME":     name,
		"SPOTIFY_ARTIST_NAME":    artist,
		"SPOTIFY_ALBUM_NAME":     album,
		"SPOTIFY_TRACK_DURATION": duration,
		"SPOTIFY_TRACK_URL":      item.Track.ExternalURLs.Spotify,
		"SPOTIFY_TRACK_ID":       item.Track.ID,
		"SPOTIFY_ADDED_AT":       item.AddedAt,
	}
}

func (d *SpotifyLikes) Placeholders() []PlaceholderInfo {
	return []PlaceholderInfo{
		{Key: "SPOTIFY_TRACK_NAME", Description: "Name of the liked track", Example: "Bohemian Rhapsody"},
		{Key: "SPOTIFY_ARTIST_NAME", Description: "Artist names, comma separated", Example: "Queen"},
		{Key: "SPOTIFY_ALBUM_NAME", Description: "Album the track belongs to", Example: "A Night at the Opera"},
		{Key: "SPOTIFY_TRACK_DURATION", Description: "Track length as minutes:seconds", Example: "5:54"},
		{Key: "SPOTIFY_TRACK_URL", Description: "Open-in-Spotify link for the track", Example: "https://open.spotify.com/track/4u7EnebtmKWzUH433cf5Qv"},
		{Key: "SPOTIFY_TRACK_ID", Description: "Spotify track identifier", Example: "4u7EnebtmKWzUH433cf5Qv"},
		{Key: "SPOTIFY_ADDED_AT", Description: "When the track was liked (ISO-8601)", Example: "2023-12-10T15:30:00Z"},
	}
}

// Spotify API response types

type spotifySavedTracksResponse struct {
	Items []spotifySavedTrack `json:"items"`
}

type spotifySavedTrack struct {
	AddedAt string `json:"added_at"`
	Track   struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		DurationMS int    `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
		Album struct {
			Name string `json:"name"`
		} `json:"album"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	} `json:"track"`
}
