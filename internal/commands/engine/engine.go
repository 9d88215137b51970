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

// Package engine implements the commonctl engine commands.
package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/commands/shared"
	"github.com/tombee/commond/internal/registry"
)

// NewCommand creates the engine command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Stop engines or show the stop record",
	}
	cmd.AddCommand(newStopCommand(), newStatusCommand())
	return cmd
}

func newStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <code> <reason>",
		Short: "Ask every engine sharing the daemon to stop",
		Long: `Records a stop request. Engines see it on their next cycle. A later
stop replaces an earlier one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid code %q: %w", args[0], err)
			}
			err = shared.WithClient(func(ctx context.Context, c *client.Client) error {
				return c.Stop(ctx, code, args[1])
			})
			if err != nil {
				return err
			}
			return shared.PrintOK(cmd.OutOrStdout(), "engine stop")
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a stop was requested",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var state *registry.StopState
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				state, err = c.Stopped(ctx)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, shared.NewLookup("engine status", state != nil, state))
			}
			if state == nil {
				fmt.Fprintln(out, "running")
				return nil
			}
			fmt.Fprintf(out, "stopped (code %d): %s\n", state.Code, state.Reason)
			return nil
		},
	}
}
