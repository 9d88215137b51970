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

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/commond/internal/registry"
)

// WatchEventKind classifies a coordination directory change.
type WatchEventKind string

const (
	WatchRaised        WatchEventKind = "raised"
	WatchRecovered     WatchEventKind = "recovered"
	WatchDaemonStarted WatchEventKind = "daemon_started"
	WatchDaemonStopped WatchEventKind = "daemon_stopped"
)

// WatchEvent is emitted by Watcher. Alert is zero for daemon events.
type WatchEvent struct {
	Kind  WatchEventKind
	Alert registry.Alert
}

// Watcher follows a coordination directory with fsnotify and reports alert
// files appearing and disappearing.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	events  chan WatchEvent
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}

	// seen maps file names to the alert they held, so removals can be
	// reported with their contents.
	seen map[string]registry.Alert
}

// NewWatcher starts watching dir. Existing alert files are reported first as
// raised events once Start is called.
func NewWatcher(dir string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if err := fsw.Add(absDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}

	return &Watcher{
		dir:     absDir,
		watcher: fsw,
		events:  make(chan WatchEvent, 100),
		logger:  logger.With(slog.String("component", "feed-watcher"), slog.String("dir", absDir)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		seen:    make(map[string]registry.Alert),
	}, nil
}

// Start scans the directory and begins forwarding changes.
func (w *Watcher) Start(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if a, ok := w.load(filepath.Join(w.dir, e.Name())); ok {
			w.emit(WatchEvent{Kind: WatchRaised, Alert: a})
		}
	}

	go w.eventLoop(ctx)
	w.logger.Debug("watcher started", "alerts", len(w.seen))
	return nil
}

// Stop ends the event loop and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

// Events is closed when the watcher stops.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Warn("fsnotify event channel closed")
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Warn("fsnotify error channel closed")
				return
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	base := filepath.Base(event.Name)

	if base == RunningFile {
		switch {
		case event.Has(fsnotify.Create):
			w.emit(WatchEvent{Kind: WatchDaemonStarted})
		case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
			w.emit(WatchEvent{Kind: WatchDaemonStopped})
		}
		return
	}

	if !strings.HasPrefix(base, AlertFilePrefix) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if a, ok := w.seen[base]; ok {
			delete(w.seen, base)
			w.emit(WatchEvent{Kind: WatchRecovered, Alert: a})
		}
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if _, ok := w.seen[base]; ok {
			return
		}
		// Create fires before the body is written; the following Write
		// delivers the content.
		if a, ok := w.load(event.Name); ok {
			w.emit(WatchEvent{Kind: WatchRaised, Alert: a})
		}
	}
}

// load parses an alert file into seen. Empty or partial files are skipped
// without error.
func (w *Watcher) load(path string) (registry.Alert, bool) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, AlertFilePrefix) {
		return registry.Alert{}, false
	}

	body, err := os.ReadFile(path)
	if err != nil || len(body) == 0 {
		return registry.Alert{}, false
	}

	a, err := ParseAlertFile(base, body)
	if err != nil {
		w.logger.Debug("skipping alert file", "file", base, "error", err)
		return registry.Alert{}, false
	}
	w.seen[base] = a
	return a, true
}

func (w *Watcher) emit(ev WatchEvent) {
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("event channel full, dropping event", "kind", ev.Kind)
	}
}
