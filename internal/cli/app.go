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

package cli

import (
	"fmt"
	"os"

	"github.com/tombee/relay/internal/config"
	"github.com/tombee/relay/internal/detector"
	"github.com/tombee/relay/internal/engine"
	"github.com/tombee/relay/internal/log"
	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/reaction"
	"github.com/tombee/relay/internal/store"
	"github.com/tombee/relay/internal/watermark"
)

// app assembles the engine stack against the same config and stores the
// daemon uses. Commands that only read the catalogue still need the full
// stack: link status and placeholder catalogues live on the registries.
type app struct {
	cfg       *config.Config
	engine    *engine.Engine
	detectors *detector.Registry
	reactions *reaction.Registry

	repo       *store.SQLite
	watermarks watermark.Store
}

func newApp(flags *rootFlags) (*app, error) {
	path := flags.configPath
	if path == "" {
		var err error
		path, err = config.ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	// CLI output stays tabular; only warnings and errors reach stderr.
	logger := log.New(&log.Config{Level: "warn", Format: log.FormatText, Output: os.Stderr})

	var watermarks watermark.Store
	if cfg.Watermarks.Store == "memory" {
		watermarks = watermark.NewMemoryStore()
	} else {
		watermarks, err = watermark.NewSQLiteStore(watermark.SQLiteConfig{Path: cfg.Watermarks.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open watermark store: %w", err)
		}
	}

	repo, err := store.NewSQLite(store.SQLiteConfig{Path: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open binding store: %w", err)
	}

	authorizer := provider.NewStaticAuthorizer(cfg.UserTokens())
	requester, err := provider.NewHTTPRequester(cfg.Endpoints(), authorizer, logger)
	if err != nil {
		return nil, err
	}
	feed := provider.NewFeed()

	detectors := detector.NewRegistry(logger, nil)
	detectors.Register(detector.NewSpotifyLikes(authorizer, requester, watermarks, logger))
	detectors.Register(detector.NewGmailNewMessage(authorizer, requester, watermarks, logger))
	detectors.Register(detector.NewDiscordNewMessage(authorizer, requester, watermarks, logger))
	detectors.Register(detector.NewGitHubNewIssue(authorizer, requester, watermarks, logger))
	detectors.Register(detector.NewDiscordLiveMessage(authorizer, feed, watermarks, logger))

	reactions := reaction.NewRegistry()
	reactions.Register(reaction.NewDiscordPostMessage(requester))
	reactions.Register(reaction.NewSlackPostMessage(requester))
	reactions.Register(reaction.NewSendEmail(cfg.SMTP))
	reactions.Register(reaction.NewLogEvent(logger))

	eng, err := engine.New(engine.Config{
		Logger:    logger,
		Repo:      repo,
		Detectors: detectors,
		Reactions: reactions,
		Links:     authorizer,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		engine:     eng,
		detectors:  detectors,
		reactions:  reactions,
		repo:       repo,
		watermarks: watermarks,
	}, nil
}

// close stops any lifecycle a bind started in this process and releases
// the stores. The daemon restores persisted bindings on its next start.
func (a *app) close() {
	a.engine.Stop()
	if closer, ok := a.watermarks.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	_ = a.repo.Close()
}
