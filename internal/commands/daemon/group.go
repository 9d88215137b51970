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

// Package daemon implements the commonctl daemon commands.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/commond/internal/commands/shared"
	"github.com/tombee/commond/internal/lifecycle"
	"github.com/tombee/commond/internal/registry"
)

// NewCommand creates the daemon command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect and stop the commond daemon",
		Long: `Commands for the commond process itself. The PID file comes from
--pid-file or daemon.pid_file in the config.`,
	}
	cmd.AddCommand(newStatusCommand(), newStopCommand())
	return cmd
}

// Status is the result of daemon status.
type Status struct {
	PID       int                 `json:"pid,omitempty"`
	Running   bool                `json:"running"`
	Command   string              `json:"command,omitempty"`
	Address   string              `json:"address"`
	Reachable bool                `json:"reachable"`
	Engine    *registry.StopState `json:"engine_stop,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func newStatusCommand() *cobra.Command {
	var pidFile string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := collectStatus(cmd.Context(), pidFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if err := shared.EmitJSON(out, shared.NewResult("daemon status", status)); err != nil {
					return err
				}
			} else {
				if status.PID != 0 {
					state := shared.RenderError("not running")
					if status.Running {
						state = shared.RenderOK("running")
					}
					fmt.Fprintf(out, "%s %d %s\n", shared.RenderLabel("pid:"), status.PID, state)
				}
				reach := shared.RenderError("unreachable")
				if status.Reachable {
					reach = shared.RenderOK("reachable")
				}
				fmt.Fprintf(out, "%s %s %s\n", shared.RenderLabel("address:"), status.Address, reach)
				if status.Engine != nil {
					fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("engine:"),
						shared.RenderWarn(fmt.Sprintf("stopped (code %d): %s", status.Engine.Code, status.Engine.Reason)))
				}
			}
			if !status.Reachable {
				return &shared.ExitError{Code: shared.ExitUnreachable, Message: "daemon unreachable"}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "Daemon PID file")
	return cmd
}

func collectStatus(ctx context.Context, pidFile string) (*Status, error) {
	path, err := resolvePIDFile(pidFile)
	if err != nil {
		return nil, err
	}

	status := &Status{}
	if path != "" {
		pid, err := lifecycle.NewPIDFileManager(path).Read()
		switch {
		case err == nil:
			info, _ := lifecycle.GetProcessInfo(pid)
			status.PID = pid
			status.Running = info.Running
			status.Command = info.Command
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	c, err := shared.NewClient()
	if err != nil {
		return nil, err
	}
	defer c.Close()
	status.Address = c.Transport().String()

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	state, err := c.Stopped(callCtx)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Reachable = true
	status.Engine = state
	return status, nil
}

func newStopCommand() *cobra.Command {
	var (
		pidFile string
		timeout time.Duration
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to the daemon and wait for it to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePIDFile(pidFile)
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("no PID file: pass --pid-file or set daemon.pid_file")
			}

			pid, err := lifecycle.NewPIDFileManager(path).Read()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return &shared.ExitError{Code: shared.ExitUnreachable, Message: "daemon not running", Cause: err}
				}
				return err
			}
			if !lifecycle.IsProcessRunning(pid) {
				return &shared.ExitError{Code: shared.ExitUnreachable, Message: "daemon not running", Cause: lifecycle.ErrProcessNotRunning}
			}
			if !lifecycle.IsCommondProcess(pid) {
				return fmt.Errorf("pid %d: %w", pid, lifecycle.ErrNotCommondProcess)
			}

			spinner := shared.NewSpinner(cmd.ErrOrStderr())
			spinner.Start(fmt.Sprintf("Stopping commond (pid %d)", pid))
			err = lifecycle.GracefulShutdown(pid, timeout, force)
			spinner.Stop()
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), shared.NewResult("daemon stop", map[string]int{"pid": pid}))
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("stopped commond (pid %d)", pid)))
			return nil
		},
	}
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "Daemon PID file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait after SIGTERM")
	cmd.Flags().BoolVar(&force, "force", false, "Send SIGKILL if the daemon does not exit in time")
	return cmd
}

func resolvePIDFile(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := shared.LoadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Daemon.PIDFile, nil
}
