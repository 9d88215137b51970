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

// Package plugin connects a cyclic host engine to commond.
//
// Management wraps a client with the per-cycle bookkeeping the engine
// needs: it remembers the alerts this owner raised and, at the start of
// each cycle, notices the ones another process recovered.
package plugin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/registry"
)

// RecoveryFunc is called once when a tracked alert is found recovered.
type RecoveryFunc func(alert registry.Alert)

type trackedAlert struct {
	alert     registry.Alert
	onRecover RecoveryFunc

	// inFlight is set while the alrt request is outstanding. epoch is the
	// value of Management.epoch when the entry was last touched.
	inFlight bool
	epoch    uint64
}

// Management is the engine-side view of the registers for one owner.
type Management struct {
	client *client.Client
	logger *slog.Logger

	mu      sync.Mutex
	tracked map[string]trackedAlert
	pending int
	epoch   uint64
}

// NewManagement wraps c. The client's owner identifies every alert raised
// through the returned Management.
func NewManagement(c *client.Client, logger *slog.Logger) *Management {
	if logger == nil {
		logger = slog.Default()
	}
	return &Management{
		client:  c,
		logger:  log.WithOwner(log.WithComponent(logger, "management"), c.Owner()),
		tracked: make(map[string]trackedAlert),
	}
}

// Client exposes the underlying client for value and command access.
func (m *Management) Client() *client.Client {
	return m.client
}

// TriggerAlert raises alert and tracks it until it is recovered. The alert
// is tracked even if the request fails, so a later cycle can reconcile it.
// A BeginCycle that overlaps the request leaves the alert alone.
func (m *Management) TriggerAlert(ctx context.Context, alert registry.Alert, onRecover RecoveryFunc) error {
	alert.Owner = m.client.Owner()

	token := m.track(alert, onRecover)
	err := m.client.TriggerAlert(ctx, alert)
	m.settle(alert.ID, token)
	return err
}

// track records alert as in flight and returns the token settle needs.
func (m *Management) track(alert registry.Alert, onRecover RecoveryFunc) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.tracked[alert.ID] = trackedAlert{alert: alert, onRecover: onRecover, inFlight: true, epoch: m.epoch}
	return m.epoch
}

// settle marks the entry from track as done. A newer trigger of the same id
// owns the entry and is left untouched.
func (m *Management) settle(alertID string, token uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracked[alertID]
	if !ok || t.epoch != token {
		return
	}
	m.epoch++
	t.inFlight = false
	t.epoch = m.epoch
	m.tracked[alertID] = t
}

// RecoverAlert clears alertID on the daemon for every owner and stops
// tracking it locally. The recovery callback does not run; the caller
// already knows.
func (m *Management) RecoverAlert(ctx context.Context, alertID string) error {
	if err := m.client.RecoverAlert(ctx, alertID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.tracked, alertID)
	m.mu.Unlock()
	return nil
}

// IsAlertRecovered reports whether alertID is no longer tracked. It
// reflects the last BeginCycle and local recoveries only.
func (m *Management) IsAlertRecovered(alertID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[alertID]
	return !ok
}

// TrackedAlerts returns the ids of alerts still outstanding for this owner.
func (m *Management) TrackedAlerts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	return ids
}

// BeginCycle reconciles tracked alerts with the daemon's live set. Each
// tracked alert that is no longer live is dropped and its callback runs.
// The pending count becomes the number of live alerts across all owners.
// Alerts still in flight, or settled after the live set was requested, are
// judged on the next cycle. Bound ctx to keep the engine cycle on time.
func (m *Management) BeginCycle(ctx context.Context) error {
	m.mu.Lock()
	start := m.epoch
	m.mu.Unlock()

	live, err := m.client.LiveAlertIDs(ctx)
	if err != nil {
		return err
	}

	liveSet := make(map[string]struct{}, len(live))
	for _, id := range live {
		liveSet[id] = struct{}{}
	}

	var recovered []trackedAlert
	m.mu.Lock()
	for id, t := range m.tracked {
		if t.inFlight || t.epoch > start {
			continue
		}
		if _, ok := liveSet[t.alert.CompositeID()]; !ok {
			recovered = append(recovered, t)
			delete(m.tracked, id)
		}
	}
	m.pending = len(live)
	m.mu.Unlock()

	// Callbacks run without the lock so they may call back into m.
	for _, t := range recovered {
		m.logger.Info("alert recovered", log.AlertIDKey, t.alert.ID)
		if t.onRecover != nil {
			t.onRecover(t.alert)
		}
	}
	return nil
}

// PendingAlertCount is the number of live alerts seen by the last
// BeginCycle.
func (m *Management) PendingAlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// StopEngine asks every engine sharing the daemon to stop.
func (m *Management) StopEngine(ctx context.Context, code int, reason string) error {
	return m.client.Stop(ctx, code, reason)
}

// IsEngineStopped returns the stop record, or nil if no stop was requested.
func (m *Management) IsEngineStopped(ctx context.Context) (*registry.StopState, error) {
	return m.client.Stopped(ctx)
}

// TearDown closes the client. Call it when the engine shuts down.
func (m *Management) TearDown() error {
	return m.client.Close()
}
