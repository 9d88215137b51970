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
	"github.com/spf13/cobra"

	"github.com/tombee/commond/internal/commands/alert"
	"github.com/tombee/commond/internal/commands/command"
	"github.com/tombee/commond/internal/commands/daemon"
	"github.com/tombee/commond/internal/commands/engine"
	"github.com/tombee/commond/internal/commands/shared"
	"github.com/tombee/commond/internal/commands/value"
	"github.com/tombee/commond/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the commonctl command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commonctl",
		Short: "commonctl - inspect and drive a commond daemon",
		Long: `commonctl talks to a running commond daemon. It reads and writes the
shared value, command, and alert registers that cooperating engines use, and
can ask those engines to stop.

Exit codes: 0 success, 1 failure, 2 daemon unreachable, 3 value or command absent.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	host, owner, json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().StringVarP(host, "host", "H", "", "Daemon address, unix:///path or tcp://host:port (default: client.host or the default socket)")
	cmd.PersistentFlags().StringVar(owner, "owner", "", "Owner id for alerts (default: client.owner)")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file")

	cmd.AddCommand(
		value.NewCommand(),
		command.NewCommand(),
		alert.NewCommand(),
		engine.NewCommand(),
		daemon.NewCommand(),
		version.NewVersionCommand(),
	)
	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
