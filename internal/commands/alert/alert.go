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

// Package alert implements the commonctl alert commands.
package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/commands/shared"
	"github.com/tombee/commond/internal/feed"
	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/registry"
)

// NewCommand creates the alert command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Raise, list, and recover alerts",
		Long: `Alerts are keyed by owner and id. Recovering an id clears it for
every owner.`,
	}
	cmd.AddCommand(
		newTriggerCommand(),
		newListCommand(),
		newRecoverCommand(),
		newLiveCommand(),
		newWatchCommand(),
	)
	return cmd
}

func newTriggerCommand() *cobra.Command {
	var (
		code    int
		message string
		plugin  string
		level   int
	)
	cmd := &cobra.Command{
		Use:     "trigger <id>",
		Short:   "Raise an alert as --owner",
		Example: `  commonctl --owner plc alert trigger A1 --code 7 --message overheat --level 2`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alert := registry.Alert{
				ID:             args[0],
				Code:           code,
				Message:        message,
				AffectedPlugin: plugin,
			}
			if cmd.Flags().Changed("level") {
				alert.Level = &level
			}
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				return c.TriggerAlert(ctx, alert)
			})
			if err != nil {
				return err
			}
			return shared.PrintOK(cmd.OutOrStdout(), "alert trigger")
		},
	}
	cmd.Flags().IntVar(&code, "code", 0, "Alert code")
	cmd.Flags().StringVar(&message, "message", "", "Alert message")
	cmd.Flags().StringVar(&plugin, "plugin", "", "Affected plugin")
	cmd.Flags().IntVar(&level, "level", 0, "Alert level")
	cmd.MarkFlagRequired("code")
	cmd.MarkFlagRequired("message")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var alerts []registry.Alert
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				alerts, err = c.Alerts(ctx)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, shared.NewResult("alert list", alerts))
			}
			if len(alerts) == 0 {
				fmt.Fprintln(out, "No live alerts")
				return nil
			}
			return writeAlertTable(out, alerts)
		},
	}
}

func writeAlertTable(out io.Writer, alerts []registry.Alert) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OWNER\tID\tCODE\tLEVEL\tPLUGIN\tRAISED\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			a.Owner, a.ID, a.Code, levelString(a.Level), a.AffectedPlugin,
			time.Unix(a.Timestamp, 0).Format(time.DateTime), a.Message)
	}
	return w.Flush()
}

func levelString(level *int) string {
	if level == nil {
		return "-"
	}
	return strconv.Itoa(*level)
}

func newRecoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <id>",
		Short: "Clear an alert id for every owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				return c.RecoverAlert(ctx, args[0])
			})
			if err != nil {
				return err
			}
			return shared.PrintOK(cmd.OutOrStdout(), "alert recover")
		},
	}
}

func newLiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Print the composite ids (owner::id) of live alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			err := shared.WithClient(func(ctx context.Context, c *client.Client) error {
				var err error
				ids, err = c.LiveAlertIDs(ctx)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, shared.NewResult("alert live", ids))
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow alert files in a coordination directory",
		Long: `Prints alerts as the daemon writes and removes their files in the
coordination directory. Alerts already present are printed first. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd.OutOrStdout(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Coordination directory (default: daemon.coordination_dir from config)")
	return cmd
}

func watch(ctx context.Context, out io.Writer, dir string) error {
	if dir == "" {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Daemon.CoordinationDir
	}
	if dir == "" {
		return fmt.Errorf("no coordination directory: pass --dir or set daemon.coordination_dir")
	}

	w, err := feed.NewWatcher(dir, log.New(log.FromEnv()))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if err := printEvent(out, ev); err != nil {
				return err
			}
		}
	}
}

type watchEventJSON struct {
	Event string          `json:"event"`
	Alert *registry.Alert `json:"alert,omitempty"`
}

func printEvent(out io.Writer, ev feed.WatchEvent) error {
	if shared.GetJSON() {
		line := watchEventJSON{Event: string(ev.Kind)}
		if ev.Alert.ID != "" {
			line.Alert = &ev.Alert
		}
		return shared.EmitJSON(out, line)
	}

	a := ev.Alert
	var line string
	switch ev.Kind {
	case feed.WatchRaised:
		line = shared.RenderWarn(fmt.Sprintf("raised    %s code=%d level=%s %s",
			a.CompositeID(), a.Code, levelString(a.Level), a.Message))
	case feed.WatchRecovered:
		line = shared.RenderOK(fmt.Sprintf("recovered %s", a.CompositeID()))
	case feed.WatchDaemonStarted:
		line = shared.RenderOK("daemon started")
	case feed.WatchDaemonStopped:
		line = shared.RenderError("daemon stopped")
	default:
		line = string(ev.Kind)
	}
	_, err := fmt.Fprintln(out, line)
	return err
}
