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

// Package command implements the commonctl command-register commands.
package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/commands/shared"
)

// NewCommand creates the command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Manage pending commands",
		Long: `Commands are named requests one process leaves for another. The
consumer reads a command and clears it once handled.`,
	}
	cmd.AddCommand(newPutCommand(), newGetCommand(), newHasCommand(), newClearCommand())
	return cmd
}

func newPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "put <name> [info]",
		Short:   "Post a command with optional JSON info",
		Example: `  commonctl command put recalibrate '{"axis":"x"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var info any
			if len(args) == 2 {
				info = shared.ParseJSONArg(args[1])
			}
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				return c.PutCommand(ctx, args[0], info)
			})
			if err != nil {
				return err
			}
			return shared.PrintOK(cmd.OutOrStdout(), "command put")
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a command's info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var info json.RawMessage
			var found bool
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				info, found, err = c.GetCommand(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			if !found {
				if shared.GetJSON() {
					shared.EmitJSON(cmd.OutOrStdout(), shared.NewLookup("command get", false, nil))
				}
				return shared.NewAbsentError(fmt.Sprintf("no command %s", args[0]))
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), shared.NewLookup("command get", true, info))
			}
			return shared.PrintValue(cmd.OutOrStdout(), info)
		},
	}
}

func newHasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "has <name>",
		Short: "Report whether a command is pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var found bool
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				found, err = c.HasCommand(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return shared.PrintBool(cmd.OutOrStdout(), "command has", found)
		},
	}
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <name>",
		Short: "Remove a pending command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				return c.ClearCommand(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return shared.PrintOK(cmd.OutOrStdout(), "command clear")
		},
	}
}
