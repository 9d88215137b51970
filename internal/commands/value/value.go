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

// Package value implements the commonctl value commands.
package value

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/commands/shared"
	"github.com/tombee/commond/internal/jq"
)

// NewCommand creates the value command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value",
		Short: "Read and write shared values",
		Long: `Values are JSON documents stored under a domain and a key.

A domain exists while it holds at least one key.`,
	}
	cmd.AddCommand(newPutCommand(), newGetCommand(), newHasCommand())
	return cmd
}

func newPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <domain> <key> <value>",
		Short: "Store a value",
		Example: `  commonctl value put plc speed 12
  commonctl value put plc limits '{"min":0,"max":40}'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := shared.ParseJSONArg(args[2])
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				return c.PutValue(ctx, args[0], args[1], value)
			})
			if err != nil {
				return err
			}
			return shared.PrintOK(cmd.OutOrStdout(), "value put")
		},
	}
}

func newGetCommand() *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "get <domain> [key]",
		Short: "Print a value, or the whole domain when key is omitted",
		Example: `  commonctl value get plc speed
  commonctl value get plc --jq '.limits.max'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			executor := jq.NewExecutor(0, 0)
			if err := executor.Validate(expr); err != nil {
				return err
			}

			var raw json.RawMessage
			var found bool
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				if len(args) == 2 {
					raw, found, err = c.GetValueRaw(ctx, args[0], args[1])
					return err
				}
				var domain map[string]json.RawMessage
				domain, found, err = c.GetDomain(ctx, args[0])
				if err == nil && found {
					raw, err = json.Marshal(domain)
				}
				return err
			})
			if err != nil {
				return err
			}
			if !found {
				if shared.GetJSON() {
					shared.EmitJSON(cmd.OutOrStdout(), shared.NewLookup("value get", false, nil))
				}
				return shared.NewAbsentError(fmt.Sprintf("no value for %s", target(args)))
			}

			var out any = raw
			if expr != "" {
				if out, err = executor.Filter(cmd.Context(), expr, raw); err != nil {
					return err
				}
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), shared.NewLookup("value get", true, out))
			}
			return shared.PrintValue(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&expr, "jq", "", "Filter the value with a jq expression")
	return cmd
}

func newHasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "has <domain> [key]",
		Short: "Report whether a domain or key exists",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var found bool
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				if len(args) == 2 {
					found, err = c.HasValue(ctx, args[0], args[1])
				} else {
					found, err = c.HasDomain(ctx, args[0])
				}
				return err
			})
			if err != nil {
				return err
			}
			return shared.PrintBool(cmd.OutOrStdout(), "value has", found)
		},
	}
}

func target(args []string) string {
	if len(args) == 2 {
		return args[0] + "/" + args[1]
	}
	return args[0]
}
