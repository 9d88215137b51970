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

// Package feed publishes alert register changes outside the daemon.
//
// Dir mirrors live alerts as files in a coordination directory, NATSFeed
// publishes them as JSON events, and Watcher turns the directory back into
// an event stream for observers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tombee/commond/internal/registry"
)

const (
	// RunningFile exists in the coordination directory while the daemon runs.
	RunningFile = "running"

	// AlertFilePrefix starts every alert file name.
	AlertFilePrefix = "alrt-"
)

// Dir is a coordination directory.
type Dir struct {
	path string
}

// NewDir creates the coordination directory if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create coordination directory: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// MarkRunning creates the running marker.
func (d *Dir) MarkRunning() error {
	return os.WriteFile(filepath.Join(d.path, RunningFile), []byte("1"), 0o644)
}

// ClearRunning removes the running marker. A missing marker is not an error.
func (d *Dir) ClearRunning() error {
	return removeIfExists(filepath.Join(d.path, RunningFile))
}

// AlertRaised writes the alert file. When a re-trigger changed the code the
// file named after the replaced record is removed after the new one exists.
func (d *Dir) AlertRaised(ctx context.Context, alert registry.Alert, replaced *registry.Alert) error {
	name := AlertFileName(alert)
	if err := os.WriteFile(filepath.Join(d.path, name), FormatAlertFile(alert), 0o644); err != nil {
		return fmt.Errorf("failed to write alert file: %w", err)
	}
	if replaced == nil {
		return nil
	}
	if stale := AlertFileName(*replaced); stale != name {
		return removeIfExists(filepath.Join(d.path, stale))
	}
	return nil
}

// AlertsRecovered removes the files of every recovered alert.
func (d *Dir) AlertsRecovered(ctx context.Context, alertID string, removed []registry.Alert) error {
	var errs []error
	for _, a := range removed {
		if err := removeIfExists(filepath.Join(d.path, AlertFileName(a))); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertFileName returns "alrt-<owner>-<alertId>-<code>". Path separators in
// owner or id are replaced so the file stays inside the directory.
func AlertFileName(a registry.Alert) string {
	return fmt.Sprintf("%s%s-%s-%d", AlertFilePrefix, safeName(a.Owner), safeName(a.ID), a.Code)
}

// FormatAlertFile renders the file body: id, code, level, timestamp,
// plugin and message, one per line. An unset level is an empty line.
func FormatAlertFile(a registry.Alert) []byte {
	level := ""
	if a.Level != nil {
		level = strconv.Itoa(*a.Level)
	}
	return []byte(fmt.Sprintf("%s\n%d\n%s\n%d\n%s\n%s", a.ID, a.Code, level, a.Timestamp, a.AffectedPlugin, a.Message))
}

// ParseAlertFile rebuilds an alert from its file name and body. The owner is
// recovered from the name; everything else comes from the body.
func ParseAlertFile(name string, body []byte) (registry.Alert, error) {
	var a registry.Alert

	base := filepath.Base(name)
	if !strings.HasPrefix(base, AlertFilePrefix) {
		return a, fmt.Errorf("%s is not an alert file", base)
	}

	lines := strings.SplitN(string(body), "\n", 6)
	if len(lines) < 6 {
		return a, fmt.Errorf("alert file %s is incomplete", base)
	}

	var err error
	a.ID = lines[0]
	if a.Code, err = strconv.Atoi(lines[1]); err != nil {
		return a, fmt.Errorf("alert file %s: bad code: %w", base, err)
	}
	if lines[2] != "" {
		level, err := strconv.Atoi(lines[2])
		if err != nil {
			return a, fmt.Errorf("alert file %s: bad level: %w", base, err)
		}
		a.Level = &level
	}
	if a.Timestamp, err = strconv.ParseInt(lines[3], 10, 64); err != nil {
		return a, fmt.Errorf("alert file %s: bad timestamp: %w", base, err)
	}
	a.AffectedPlugin = lines[4]
	a.Message = lines[5]

	suffix := fmt.Sprintf("-%s-%d", safeName(a.ID), a.Code)
	owner, ok := strings.CutSuffix(strings.TrimPrefix(base, AlertFilePrefix), suffix)
	if !ok {
		return a, fmt.Errorf("alert file %s does not match its contents", base)
	}
	a.Owner = owner
	return a, nil
}

func safeName(s string) string {
	return strings.NewReplacer("/", "_", string(os.PathSeparator), "_", "\x00", "_").Replace(s)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
