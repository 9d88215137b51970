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
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileManager_Create(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("writes PID with owner-only permissions", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "commond.pid")
		m := NewPIDFileManager(pidPath)
		defer m.Remove()

		if err := m.Create(1234); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !m.Exists() {
			t.Fatal("PID file does not exist after Create()")
		}

		pid, err := m.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if pid != 1234 {
			t.Errorf("Read() = %d, want 1234", pid)
		}

		info, err := os.Stat(pidPath)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if mode := info.Mode() & os.ModePerm; mode != 0o600 {
			t.Errorf("PID file mode = %04o, want 0600", mode)
		}
	})

	t.Run("refuses a file locked by another manager", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "locked.pid")
		m1 := NewPIDFileManager(pidPath)
		m2 := NewPIDFileManager(pidPath)
		defer m1.Remove()

		if err := m1.Create(os.Getpid()); err != nil {
			t.Fatalf("first Create() error = %v", err)
		}
		err := m2.Create(os.Getpid())
		if !errors.Is(err, ErrPIDFileLocked) {
			t.Errorf("second Create() error = %v, want ErrPIDFileLocked", err)
		}
	})

	t.Run("replaces a stale file", func(t *testing.T) {
		pidPath := filepath.Join(tmpDir, "stale.pid")
		if err := os.WriteFile(pidPath, []byte("999999\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		m := NewPIDFileManager(pidPath)
		defer m.Remove()
		if err := m.Create(4321); err != nil {
			t.Fatalf("Create() over stale file error = %v", err)
		}
		if pid, _ := m.Read(); pid != 4321 {
			t.Errorf("Read() = %d, want 4321", pid)
		}
	})

	t.Run("creates parent directory", func(t *testing.T) {
		deepPath := filepath.Join(tmpDir, "nested", "dir", "commond.pid")
		m := NewPIDFileManager(deepPath)
		defer m.Remove()

		if err := m.Create(1234); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		info, err := os.Stat(filepath.Dir(deepPath))
		if err != nil {
			t.Fatalf("parent directory not created: %v", err)
		}
		if mode := info.Mode() & os.ModePerm; mode != 0o700 {
			t.Errorf("directory mode = %04o, want 0700", mode)
		}
	})

	t.Run("rejects world-writable parent", func(t *testing.T) {
		unsafeDir := filepath.Join(tmpDir, "unsafe")
		if err := os.Mkdir(unsafeDir, 0o777); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(unsafeDir, 0o777); err != nil {
			t.Fatal(err)
		}

		m := NewPIDFileManager(filepath.Join(unsafeDir, "commond.pid"))
		if err := m.Create(1234); !errors.Is(err, ErrUnsafeDirectory) {
			t.Errorf("Create() error = %v, want ErrUnsafeDirectory", err)
		}
	})
}

func TestPIDFileManager_Read(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"garbage", "not-a-pid", ErrInvalidPID},
		{"zero", "0", ErrInvalidPID},
		{"negative", "-5", ErrInvalidPID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".pid")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := NewPIDFileManager(path).Read()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Read() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := NewPIDFileManager(filepath.Join(tmpDir, "missing.pid")).Read()
		if !os.IsNotExist(err) {
			t.Errorf("Read() error = %v, want not-exist", err)
		}
	})
}

func TestPIDFileManager_RemoveIdempotent(t *testing.T) {
	m := NewPIDFileManager(filepath.Join(t.TempDir(), "commond.pid"))
	if err := m.Remove(); err != nil {
		t.Errorf("Remove() on missing file error = %v", err)
	}
}
