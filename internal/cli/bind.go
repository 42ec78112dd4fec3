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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/pkg/errors"
)

func newBindCommand(flags *rootFlags) *cobra.Command {
	var (
		actionName     string
		reactionName   string
		actionConfig   []string
		reactionConfig []string
	)

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Create a binding from an action to a reaction",
		Example: `  relay bind --action discord_new_message --action-config channel_id=123 \
      --reaction log_event --reaction-config "message=got {{MESSAGE_CONTENT}}"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			actionFields, _ := a.detectors.FieldsFor(actionName)
			var reactionFields []schema.Field
			if executor, ok := a.reactions.Find(reactionName); ok {
				reactionFields = executor.Fields()
			}

			aCfg, err := parseConfigPairs(actionConfig, actionFields)
			if err != nil {
				return err
			}
			rCfg, err := parseConfigPairs(reactionConfig, reactionFields)
			if err != nil {
				return err
			}

			id, err := a.engine.Bind(cmd.Context(), flags.userID, actionName, reactionName, aCfg, rCfg)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created binding %s\n", id)
			fmt.Fprintln(cmd.OutOrStdout(), "relayd picks it up on its next start.")
			return nil
		},
	}

	cmd.Flags().StringVar(&actionName, "action", "", "Action name (see 'relay actions')")
	cmd.Flags().StringVar(&reactionName, "reaction", "", "Reaction name (see 'relay reactions')")
	cmd.Flags().StringArrayVar(&actionConfig, "action-config", nil, "Action config entry as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&reactionConfig, "reaction-config", nil, "Reaction config entry as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("reaction")

	return cmd
}

func newDeactivateCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <binding-id>",
		Short: "Deactivate a binding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deactivated binding %s\n", args[0])
			return nil
		},
	}
}

// parseConfigPairs converts repeated key=value flags into a config map,
// typing each value by its declared field schema. Keys without a declared
// field stay strings.
func parseConfigPairs(pairs []string, fields []schema.Field) (map[string]any, error) {
	if len(pairs) == 0 {
		return map[string]any{}, nil
	}

	types := make(map[string]string, len(fields))
	for _, f := range fields {
		types[f.Name] = f.Type
	}

	cfg := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, &errors.ValidationError{
				Field:      pair,
				Message:    "config entries must be key=value",
				Suggestion: "quote values containing spaces, e.g. \"message=hello world\"",
			}
		}

		typed, err := coerceValue(value, types[key])
		if err != nil {
			return nil, &errors.ValidationError{
				Field:   key,
				Message: err.Error(),
			}
		}
		cfg[key] = typed
	}
	return cfg, nil
}

func coerceValue(s, fieldType string) (any, error) {
	switch fieldType {
	case schema.Boolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", s)
		}
		return b, nil
	case schema.Number:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", s)
		}
		return f, nil
	default:
		return s, nil
	}
}
