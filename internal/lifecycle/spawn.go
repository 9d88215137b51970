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
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// ErrSocketTimeout is returned by WaitForSocket when the file never appears.
var ErrSocketTimeout = errors.New("timed out waiting for daemon socket")

// Spawner starts daemon processes in their own session.
type Spawner struct {
	// Env is the child's environment.
	Env []string
}

// NewSpawner returns a spawner that passes the current environment through.
func NewSpawner() *Spawner {
	return &Spawner{Env: os.Environ()}
}

// WithEnv replaces the child environment.
func (s *Spawner) WithEnv(env []string) *Spawner {
	s.Env = env
	return s
}

// Child is a spawned process. It is reaped in the background so that
// liveness checks see it exit.
type Child struct {
	PID  int
	done chan struct{}
	err  error
}

// Start runs binary detached from the terminal with stdout and stderr
// appended to logPath. An empty logPath discards output.
func (s *Spawner) Start(binary string, args []string, logPath string) (*Child, error) {
	cmd := exec.Command(binary, args...)
	cmd.Env = s.Env
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Setsid: true}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	c := &Child{PID: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		c.err = cmd.Wait()
		close(c.done)
	}()
	return c, nil
}

// Done is closed when the child has exited.
func (c *Child) Done() <-chan struct{} {
	return c.done
}

// Err returns the exit error once Done is closed.
func (c *Child) Err() error {
	<-c.done
	return c.err
}

// Stop sends SIGTERM and waits up to timeout. With force, a child still
// running afterwards is killed.
func (c *Child) Stop(timeout time.Duration, force bool) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	if err := SendSignal(c.PID, syscall.SIGTERM); err != nil {
		return err
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
	}

	if !force {
		return ErrShutdownTimeout
	}
	if err := SendSignal(c.PID, syscall.SIGKILL); err != nil {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process %d did not die after SIGKILL", c.PID)
	}
}

// WaitForSocket polls for path to exist.
func WaitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrSocketTimeout, path)
		}
		time.Sleep(time.Millisecond)
	}
}
