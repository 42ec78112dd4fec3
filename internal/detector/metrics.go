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
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics collects Prometheus-compatible metrics for detection lifecycles.
type Metrics struct {
	meter metric.Meter

	ticksTotal  metric.Int64Counter
	eventsTotal metric.Int64Counter
	tickLatency metric.Float64Histogram

	activeLifecycles   int64
	activeLifecyclesMu sync.RWMutex
}

// NewMetrics creates the detector metrics collector.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter("relay")

	m := &Metrics{meter: meter}

	var err error

	m.ticksTotal, err = meter.Int64Counter(
		"relay_detector_ticks_total",
		metric.WithDescription("Total number of detection checks executed"),
		metric.WithUnit("{tick}"),
	)
	if err != nil {
		return nil, err
	}

	m.eventsTotal, err = meter.Int64Counter(
		"relay_detector_events_total",
		metric.WithDescription("Total number of triggered events detected"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.tickLatency, err = meter.Float64Histogram(
		"relay_detector_tick_latency_seconds",
		metric.WithDescription("Detection check latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"relay_detector_lifecycles_active",
		metric.WithDescription("Number of running detection lifecycles"),
		metric.WithUnit("{lifecycle}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			m.activeLifecyclesMu.RLock()
			count := m.activeLifecycles
			m.activeLifecyclesMu.RUnlock()
			observer.Observe(count)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTick records one completed detection check.
func (m *Metrics) RecordTick(ctx context.Context, action string, status Status, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("action", action),
		attribute.String("status", status.String()),
	}

	m.ticksTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if duration > 0 {
		m.tickLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if status == Triggered {
		m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
	}
}

// SetActiveLifecycles sets the count of running detection lifecycles.
func (m *Metrics) SetActiveLifecycles(count int) {
	m.activeLifecyclesMu.Lock()
	m.activeLifecycles = int64(count)
	m.activeLifecyclesMu.Unlock()
}
