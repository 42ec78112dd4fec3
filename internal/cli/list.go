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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/relay/internal/engine"
)

func newActionsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List available actions grouped by provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			groups, err := a.engine.ListActions(cmd.Context(), flags.userID)
			if err != nil {
				return err
			}
			printGroups(cmd, groups)
			return nil
		},
	}
}

func newReactionsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reactions",
		Short: "List available reactions grouped by provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			groups, err := a.engine.ListReactions(cmd.Context(), flags.userID)
			if err != nil {
				return err
			}
			printGroups(cmd, groups)
			return nil
		},
	}
}

func newPlaceholdersCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "placeholders <action>",
		Short: "Show the placeholder vocabulary an action provides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			infos, err := a.engine.Placeholders(args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLACEHOLDER\tDESCRIPTION\tEXAMPLE")
			for _, info := range infos {
				fmt.Fprintf(w, "{{%s}}\t%s\t%s\n", info.Key, info.Description, info.Example)
			}
			return w.Flush()
		},
	}
}

func newBindingsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bindings",
		Short: "List your bindings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.close()

			bindings, err := a.engine.ListBindings(cmd.Context(), flags.userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACTION\tREACTION\tSTATE\tCREATED")
			for _, b := range bindings {
				state := "inactive"
				if b.Active {
					state = "active"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					b.ID, b.Action, b.Reaction, state,
					b.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func printGroups(cmd *cobra.Command, groups []engine.ProviderGroup) {
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		linked := "not linked"
		if g.Linked {
			linked = "linked"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", g.Provider, linked)
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", strings.Join(g.Names, "\n  "))
	}
}
