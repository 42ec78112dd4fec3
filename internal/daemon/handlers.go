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

package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/relay/internal/provider"
)

// maxFeedPayload bounds inbound push event bodies.
const maxFeedPayload = 1 << 20

// routes builds the daemon's HTTP surface: Prometheus metrics, a health
// probe, and the push-event ingress that feeds live detectors.
func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", d.handleHealthz)
	mux.HandleFunc("POST /feed/{provider}/{resource}", d.handleFeed)
	return mux
}

func (d *Daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    d.opts.Version,
		"lifecycles": d.detectors.Running(),
	})
}

// handleFeed accepts one push event from an external delivery hook (for
// example a Discord gateway bridge) and publishes it to subscribed live
// detectors. Redelivery is harmless: every delivered event runs the same
// watermark comparison a poll would.
func (d *Daemon) handleFeed(w http.ResponseWriter, r *http.Request) {
	providerKey := r.PathValue("provider")
	resource := r.PathValue("resource")

	var payload map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFeedPayload))
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "body must be a JSON object",
		})
		return
	}

	d.feed.Publish(provider.FeedEvent{
		Provider: providerKey,
		Resource: resource,
		Payload:  payload,
	})

	d.logger.Debug("published feed event",
		slog.String("provider", providerKey),
		slog.String("resource", resource))

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
