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

// Package daemon assembles and runs the relayd process: it opens the
// stores, registers the detector and reaction catalogues, restores active
// bindings, and serves the metrics and feed-ingress HTTP endpoints.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tombee/relay/internal/config"
	"github.com/tombee/relay/internal/detector"
	"github.com/tombee/relay/internal/engine"
	internallog "github.com/tombee/relay/internal/log"
	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/reaction"
	"github.com/tombee/relay/internal/store"
	"github.com/tombee/relay/internal/watermark"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the relayd process.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	engine     *engine.Engine
	detectors  *detector.Registry
	feed       *provider.Feed
	repo       *store.SQLite
	watermarks watermark.Store

	meterProvider *sdkmetric.MeterProvider
	server        *http.Server

	mu      sync.Mutex
	started bool
}

// New wires up a daemon from configuration.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := internallog.WithComponent(internallog.New(&internallog.Config{
		Level:  cfg.Log.Level,
		Format: internallog.Format(cfg.Log.Format),
		Output: os.Stderr,
	}), "daemon")

	meterProvider, err := newMeterProvider(opts.Version)
	if err != nil {
		return nil, err
	}

	watermarks, err := newWatermarkStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark store: %w", err)
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

	detectorMetrics, err := detector.NewMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector metrics: %w", err)
	}

	detectors := detector.NewRegistry(internallog.WithComponent(logger, "detector"), detectorMetrics)
	registerDetectors(detectors, authorizer, requester, feed, watermarks, logger)

	reactions := reaction.NewRegistry()
	registerReactions(reactions, requester, cfg.SMTP, logger)

	eng, err := engine.New(engine.Config{
		Logger:    internallog.WithComponent(logger, "engine"),
		Repo:      repo,
		Detectors: detectors,
		Reactions: reactions,
		Links:     authorizer,
	})
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:           cfg,
		opts:          opts,
		logger:        logger,
		engine:        eng,
		detectors:     detectors,
		feed:          feed,
		repo:          repo,
		watermarks:    watermarks,
		meterProvider: meterProvider,
	}, nil
}

// Engine exposes the binding orchestrator, used by the feed handler tests.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// Start restores persisted bindings and serves HTTP until ctx is cancelled
// or the listener fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	d.logger.Info("starting relayd",
		slog.String("version", d.opts.Version),
		slog.String("commit", d.opts.Commit))

	if err := d.engine.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore bindings: %w", err)
	}

	if d.cfg.Metrics.Listen == "off" {
		d.logger.Info("http listener disabled")
		<-ctx.Done()
		return nil
	}

	d.server = &http.Server{
		Addr:              d.cfg.Metrics.Listen,
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("http listener started", slog.String("addr", d.server.Addr))
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http listener failed: %w", err)
	}
}

// Shutdown stops lifecycles, drains the HTTP server, and closes the stores.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.logger.Info("shutting down")

	d.engine.Stop()

	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn("http shutdown incomplete", internallog.Error(err))
		}
	}

	if err := d.meterProvider.Shutdown(ctx); err != nil {
		d.logger.Warn("meter provider shutdown incomplete", internallog.Error(err))
	}

	var firstErr error
	if closer, ok := d.watermarks.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if err := d.repo.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	d.logger.Info("shutdown complete")
	return firstErr
}

// newMeterProvider builds the OTel meter provider backed by the Prometheus
// exporter; collected metrics surface on /metrics via promhttp.
func newMeterProvider(version string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName("relay"),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	), nil
}

// newWatermarkStore opens the configured watermark backend.
func newWatermarkStore(cfg *config.Config) (watermark.Store, error) {
	if cfg.Watermarks.Store == "memory" {
		return watermark.NewMemoryStore(), nil
	}
	return watermark.NewSQLiteStore(watermark.SQLiteConfig{Path: cfg.Watermarks.Path})
}

// registerDetectors installs the action catalogue. Registration order is
// the lookup order: first match wins.
func registerDetectors(r *detector.Registry, links provider.Links, requester provider.Requester, feed *provider.Feed, watermarks watermark.Store, logger *slog.Logger) {
	r.Register(detector.NewSpotifyLikes(links, requester, watermarks, logger))
	r.Register(detector.NewGmailNewMessage(links, requester, watermarks, logger))
	r.Register(detector.NewDiscordNewMessage(links, requester, watermarks, logger))
	r.Register(detector.NewGitHubNewIssue(links, requester, watermarks, logger))
	r.Register(detector.NewDiscordLiveMessage(links, feed, watermarks, logger))
}

// registerReactions installs the reaction catalogue.
func registerReactions(r *reaction.Registry, requester provider.Requester, smtp reaction.SMTPConfig, logger *slog.Logger) {
	r.Register(reaction.NewDiscordPostMessage(requester))
	r.Register(reaction.NewSlackPostMessage(requester))
	r.Register(reaction.NewSendEmail(smtp))
	r.Register(reaction.NewLogEvent(logger))
}
