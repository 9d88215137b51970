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

package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// ProcessName is matched against a process command line to decide whether
// a PID belongs to the daemon.
const ProcessName = "commond"

var (
	// ErrProcessNotRunning is returned when the process does not exist.
	ErrProcessNotRunning = errors.New("process not running")

	// ErrNotCommondProcess is returned when a PID belongs to something else.
	ErrNotCommondProcess = errors.New("process is not a commond daemon")

	// ErrShutdownTimeout is returned when the process outlives the timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// ProcessInfo describes a process.
type ProcessInfo struct {
	PID     int
	Running bool
	Command string
}

// IsProcessRunning checks for the process with signal 0.
func IsProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// IsCommondProcess reports whether pid runs the commond binary.
func IsCommondProcess(pid int) bool {
	return isCommondProcess(pid)
}

// SendSignal sends sig to pid.
func SendSignal(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("failed to send signal %v to process %d: %w", sig, pid, err)
	}
	return nil
}

// WaitForExit polls until pid is gone or timeout elapses.
func WaitForExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return ErrShutdownTimeout
}

// GracefulShutdown sends SIGTERM and waits. With force, a process still
// alive after timeout gets SIGKILL.
func GracefulShutdown(pid int, timeout time.Duration, force bool) error {
	if !IsProcessRunning(pid) {
		return ErrProcessNotRunning
	}

	if err := SendSignal(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	err := WaitForExit(pid, timeout)
	if err == nil || !force {
		return err
	}

	if err := SendSignal(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}
	if err := WaitForExit(pid, 5*time.Second); err != nil {
		return fmt.Errorf("process did not die after SIGKILL: %w", err)
	}
	return nil
}

// GetProcessInfo returns what is known about pid.
func GetProcessInfo(pid int) (*ProcessInfo, error) {
	info := &ProcessInfo{PID: pid, Running: IsProcessRunning(pid)}
	if info.Running {
		cmd, err := getProcessCommand(pid)
		if err != nil {
			info.Command = "<unknown>"
		} else {
			info.Command = cmd
		}
	}
	return info, nil
}
