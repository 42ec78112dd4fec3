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

// Package cli implements the relay command line: catalogue and binding
// inspection plus bind/deactivate administration against the local store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tombee/relay/pkg/errors"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	userID     string
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// NewRootCommand creates the root cobra command for relay.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "relay - trigger to reaction automation",
		Long: `Relay binds triggers ("actions", like a new Spotify like or a new
Discord message) to effects ("reactions", like posting to a channel or
sending an email) and fires each reaction once per newly observed event.

The CLI administers bindings in the local store; relayd watches the
trigger sources and runs the reactions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	registerRootFlags(cmd.PersistentFlags(), flags)

	cmd.AddCommand(newActionsCommand(flags))
	cmd.AddCommand(newReactionsCommand(flags))
	cmd.AddCommand(newPlaceholdersCommand(flags))
	cmd.AddCommand(newBindingsCommand(flags))
	cmd.AddCommand(newBindCommand(flags))
	cmd.AddCommand(newDeactivateCommand(flags))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func registerRootFlags(fs *pflag.FlagSet, flags *rootFlags) {
	fs.StringVar(&flags.configPath, "config", "", "Path to config file (default: ~/.config/relay/config.yaml)")
	fs.StringVarP(&flags.userID, "user", "u", defaultUserID(), "User id to act as")
}

// defaultUserID resolves the acting user: RELAY_USER, then the OS user.
func defaultUserID() string {
	if u := os.Getenv("RELAY_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}

// HandleExitError prints an error with any suggestion it carries and exits
// nonzero.
func HandleExitError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var validationErr *errors.ValidationError
	if errors.As(err, &validationErr) && validationErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", validationErr.Suggestion)
	}
	var providerErr *errors.ProviderError
	if errors.As(err, &providerErr) && providerErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", providerErr.Suggestion)
	}
	var notLinkedErr *errors.NotLinkedError
	if errors.As(err, &notLinkedErr) {
		fmt.Fprintf(os.Stderr, "Hint: add a token for %s under tokens: in the relay config file\n", notLinkedErr.Provider)
	}

	os.Exit(1)
}
