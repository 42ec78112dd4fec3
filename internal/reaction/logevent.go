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
	"log/slog"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
)

// LogEvent writes the substituted message to the structured log. Useful for
// trying out a binding before pointing it at a real destination.
type LogEvent struct {
	logger *slog.Logger
}

// NewLogEvent creates the log_event executor.
func NewLogEvent(logger *slog.Logger) *LogEvent {
	return &LogEvent{logger: logger.With(slog.String("reaction", "log_event"))}
}

func (e *LogEvent) Name() string { return "log_event" }

func (e *LogEvent) Supports(reactionName string) bool { return reactionName == e.Name() }

func (e *LogEvent) Provider() string { return provider.None }

func (e *LogEvent) Fields() []schema.Field {
	return []schema.Field{
		{Name: "message", Type: schema.String, Required: true, Description: "Text to log, may contain placeholders"},
		{Name: "level", Type: schema.String, Required: false, Description: "Log level: debug, info, warn or error (default info)"},
	}
}

func (e *LogEvent) Run(ctx context.Context, userID string, config map[string]any) (string, error) {
	if err := schema.Validate(e.Fields(), config); err != nil {
		return "", err
	}

	message := configString(config, "message")
	attrs := []any{slog.String("user_id", userID)}

	switch configString(config, "level") {
	case "debug":
		e.logger.Debug(message, attrs...)
	case "warn":
		e.logger.Warn(message, attrs...)
	case "error":
		e.logger.Error(message, attrs...)
	default:
		e.logger.Info(message, attrs...)
	}

	return "logged event", nil
}
