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
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// skipOnSpawnError skips when the sandbox forbids fork/exec.
func skipOnSpawnError(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("spawn not permitted in this environment: %v", err)
	}
}

func TestSpawner_Start(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("SKIP_SPAWN_TESTS is set")
	}
	tmpDir := t.TempDir()

	t.Run("captures output and reaps the child", func(t *testing.T) {
		logPath := filepath.Join(tmpDir, "logs", "out.log")
		child, err := NewSpawner().Start("sh", []string{"-c", "echo started"}, logPath)
		skipOnSpawnError(t, err)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		select {
		case <-child.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("child did not exit")
		}
		if err := child.Err(); err != nil {
			t.Errorf("child exit error = %v", err)
		}
		if IsProcessRunning(child.PID) {
			t.Error("reaped child still reported as running")
		}

		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("failed to read log: %v", err)
		}
		if !strings.Contains(string(content), "started") {
			t.Errorf("log = %q, want it to contain output", content)
		}
	})

	t.Run("stops a running child", func(t *testing.T) {
		child, err := NewSpawner().Start("sleep", []string{"60"}, "")
		skipOnSpawnError(t, err)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := child.Stop(2*time.Second, true); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
		// Stopping twice is a no-op.
		if err := child.Stop(time.Second, false); err != nil {
			t.Errorf("second Stop() error = %v", err)
		}
	})

	t.Run("invalid binary", func(t *testing.T) {
		if _, err := NewSpawner().Start("/nonexistent/commond", nil, ""); err == nil {
			t.Error("Start() with invalid binary succeeded, want error")
		}
	})
}

func TestWaitForSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "lc")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "d.sock")

	if err := WaitForSocket(sock, 20*time.Millisecond); !errors.Is(err, ErrSocketTimeout) {
		t.Errorf("WaitForSocket() before listen error = %v, want ErrSocketTimeout", err)
	}

	lnCh := make(chan net.Listener, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		ln, _ := net.Listen("unix", sock)
		lnCh <- ln
	}()
	if err := WaitForSocket(sock, 2*time.Second); err != nil {
		t.Errorf("WaitForSocket() error = %v", err)
	}
	if ln := <-lnCh; ln != nil {
		defer ln.Close()
	}

	// A regular file is not a socket.
	plain := filepath.Join(dir, "plain")
	os.WriteFile(plain, nil, 0o600)
	if err := WaitForSocket(plain, 10*time.Millisecond); err == nil {
		t.Error("WaitForSocket() accepted a regular file")
	}
}
