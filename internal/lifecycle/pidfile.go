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
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrPIDFileExists is returned when the PID file is already present.
	ErrPIDFileExists = errors.New("PID file already exists")

	// ErrPIDFileLocked is returned when another process holds the lock.
	ErrPIDFileLocked = errors.New("PID file is locked by another process")

	// ErrInvalidPID is returned when the file does not hold a positive integer.
	ErrInvalidPID = errors.New("invalid PID in file")

	// ErrUnsafeDirectory is returned when the parent directory is world-writable.
	ErrUnsafeDirectory = errors.New("PID file directory is world-writable")
)

// PIDFileManager owns a flock'd PID file. The file is created with O_EXCL
// and stays open until Remove so the lock lives as long as the daemon.
type PIDFileManager struct {
	path     string
	lockFile *os.File
}

// NewPIDFileManager returns a manager for path.
func NewPIDFileManager(path string) *PIDFileManager {
	return &PIDFileManager{path: path}
}

// Path returns the managed file path.
func (m *PIDFileManager) Path() string {
	return m.path
}

// Create writes pid and takes the lock. A file left behind by a process
// that is no longer commond is replaced.
func (m *PIDFileManager) Create(pid int) error {
	dir := filepath.Dir(m.path)
	if err := verifyDirectorySafety(dir); err != nil {
		return fmt.Errorf("unsafe PID file location: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := m.removeStale(); err != nil {
		return err
	}

	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return ErrPIDFileExists
		}
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		os.Remove(m.path)
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrPIDFileLocked
		}
		return fmt.Errorf("failed to lock PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		m.abandon(f)
		return fmt.Errorf("failed to write PID: %w", err)
	}
	if err := f.Sync(); err != nil {
		m.abandon(f)
		return fmt.Errorf("failed to sync PID file: %w", err)
	}

	m.lockFile = f
	return nil
}

// Read returns the PID stored in the file.
func (m *PIDFileManager) Read() (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPID, raw)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}
	return pid, nil
}

// Remove releases the lock and deletes the file.
func (m *PIDFileManager) Remove() error {
	if m.lockFile != nil {
		syscall.Flock(int(m.lockFile.Fd()), syscall.LOCK_UN)
		m.lockFile.Close()
		m.lockFile = nil
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Exists reports whether the file is present.
func (m *PIDFileManager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func (m *PIDFileManager) removeStale() error {
	pid, err := m.Read()
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, ErrInvalidPID) && !m.locked() {
			if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove stale PID file: %w", err)
			}
			return nil
		}
		return err
	}
	if IsProcessRunning(pid) && IsCommondProcess(pid) {
		return fmt.Errorf("%w: held by running daemon %d", ErrPIDFileExists, pid)
	}
	if m.locked() {
		return ErrPIDFileLocked
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale PID file: %w", err)
	}
	return nil
}

// locked reports whether another process holds the file lock.
func (m *PIDFileManager) locked() bool {
	f, err := os.Open(m.path)
	if err != nil {
		return false
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true
	}
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}

func (m *PIDFileManager) abandon(f *os.File) {
	f.Close()
	os.Remove(m.path)
}

// verifyDirectorySafety rejects world-writable parents, where another user
// could plant a symlink at the PID file path.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if mode := info.Mode(); mode&0o002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}
	return nil
}
