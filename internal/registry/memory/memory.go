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

// Package memory provides the default in-process registry.
//
// Backend has no internal locking. The daemon's server loop is its only
// caller and serializes every request.
package memory

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/tombee/commond/internal/registry"
)

// Compile-time interface assertions.
var (
	_ registry.ValueStore   = (*Backend)(nil)
	_ registry.CommandStore = (*Backend)(nil)
	_ registry.AlertStore   = (*Backend)(nil)
	_ registry.ControlStore = (*Backend)(nil)
	_ registry.Store        = (*Backend)(nil)
)

// Backend is an in-memory registry.
type Backend struct {
	values   map[string]map[string]json.RawMessage
	commands map[string]json.RawMessage
	alerts   map[string]registry.Alert
	// index maps an alert id to the composite ids raised under it, in
	// trigger order.
	index   map[string][]string
	stopped *registry.StopState
}

// New creates an empty in-memory registry.
func New() *Backend {
	return &Backend{
		values:   make(map[string]map[string]json.RawMessage),
		commands: make(map[string]json.RawMessage),
		alerts:   make(map[string]registry.Alert),
		index:    make(map[string][]string),
	}
}

// PutValue stores value under domain/key.
func (b *Backend) PutValue(ctx context.Context, domain, key string, value json.RawMessage) error {
	d, ok := b.values[domain]
	if !ok {
		d = make(map[string]json.RawMessage)
		b.values[domain] = d
	}
	d[key] = clone(value)
	return nil
}

// HasValue reports whether key exists in domain.
func (b *Backend) HasValue(ctx context.Context, domain, key string) (bool, error) {
	_, ok := b.values[domain][key]
	return ok, nil
}

// HasDomain reports whether domain holds at least one key.
func (b *Backend) HasDomain(ctx context.Context, domain string) (bool, error) {
	return len(b.values[domain]) > 0, nil
}

// GetValue returns the value under domain/key.
func (b *Backend) GetValue(ctx context.Context, domain, key string) (json.RawMessage, bool, error) {
	v, ok := b.values[domain][key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

// GetDomain returns a copy of every key/value under domain.
func (b *Backend) GetDomain(ctx context.Context, domain string) (map[string]json.RawMessage, bool, error) {
	d := b.values[domain]
	if len(d) == 0 {
		return nil, false, nil
	}
	out := make(map[string]json.RawMessage, len(d))
	for k, v := range d {
		out[k] = clone(v)
	}
	return out, true, nil
}

// PutCommand stores info under name.
func (b *Backend) PutCommand(ctx context.Context, name string, info json.RawMessage) error {
	if info == nil {
		info = registry.FalseInfo
	}
	b.commands[name] = clone(info)
	return nil
}

// HasCommand reports whether name is pending.
func (b *Backend) HasCommand(ctx context.Context, name string) (bool, error) {
	_, ok := b.commands[name]
	return ok, nil
}

// GetCommand returns the info under name.
func (b *Backend) GetCommand(ctx context.Context, name string) (json.RawMessage, bool, error) {
	info, ok := b.commands[name]
	if !ok {
		return nil, false, nil
	}
	return clone(info), true, nil
}

// ClearCommand removes name.
func (b *Backend) ClearCommand(ctx context.Context, name string) error {
	delete(b.commands, name)
	return nil
}

// TriggerAlert stores alert and indexes it, returning the record it replaced.
func (b *Backend) TriggerAlert(ctx context.Context, alert registry.Alert) (*registry.Alert, error) {
	cid := alert.CompositeID()
	var replaced *registry.Alert
	if prev, exists := b.alerts[cid]; exists {
		replaced = &prev
	} else {
		b.index[alert.ID] = append(b.index[alert.ID], cid)
	}
	b.alerts[cid] = alert
	return replaced, nil
}

// Alerts returns every live alert ordered by composite id.
func (b *Backend) Alerts(ctx context.Context) ([]registry.Alert, error) {
	ids := slices.Sorted(maps.Keys(b.alerts))
	out := make([]registry.Alert, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.alerts[id])
	}
	return out, nil
}

// RecoverAlert removes everything indexed under alertID.
func (b *Backend) RecoverAlert(ctx context.Context, alertID string) ([]registry.Alert, error) {
	var removed []registry.Alert
	for _, cid := range b.index[alertID] {
		if a, ok := b.alerts[cid]; ok {
			removed = append(removed, a)
			delete(b.alerts, cid)
		}
	}
	delete(b.index, alertID)
	return removed, nil
}

// LiveAlertIDs returns the sorted composite ids of live alerts.
func (b *Backend) LiveAlertIDs(ctx context.Context) ([]string, error) {
	return slices.Sorted(maps.Keys(b.alerts)), nil
}

// Stop records the stop request.
func (b *Backend) Stop(ctx context.Context, state registry.StopState) error {
	b.stopped = &state
	return nil
}

// Stopped returns the stop record or nil.
func (b *Backend) Stopped(ctx context.Context) (*registry.StopState, error) {
	if b.stopped == nil {
		return nil, nil
	}
	s := *b.stopped
	return &s, nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

func clone(v json.RawMessage) json.RawMessage {
	return slices.Clone(v)
}
