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

// Package registry defines the storage contract for the daemon's shared
// registers.
//
// # Interface Hierarchy
//
// The contract is split per register so handlers can depend on the part
// they touch:
//
//   - ValueStore: domain -> key -> value registers
//   - CommandStore: pending command requests
//   - AlertStore: alert records keyed by composite id, plus the alert-id index
//   - ControlStore: the engine stop record
//
// Store composes all of them with io.Closer. Implementations live in the
// memory and sqlite subpackages.
//
// # Absent values
//
// Reads report absence through a separate found flag, never by returning a
// falsy value. A stored JSON false is a legitimate value and is returned
// with found=true. A domain exists exactly when at least one key has been
// written under it.
package registry

import (
	"context"
	"encoding/json"
	"io"
	"strings"
)

// FalseInfo is stored for commands put without a payload.
var FalseInfo = json.RawMessage("false")

// ValueStore holds the value registers.
type ValueStore interface {
	// PutValue stores value under domain/key, replacing any previous value.
	PutValue(ctx context.Context, domain, key string, value json.RawMessage) error

	// HasValue reports whether key exists in domain.
	HasValue(ctx context.Context, domain, key string) (bool, error)

	// HasDomain reports whether domain holds at least one key.
	HasDomain(ctx context.Context, domain string) (bool, error)

	// GetValue returns the value stored under domain/key.
	GetValue(ctx context.Context, domain, key string) (json.RawMessage, bool, error)

	// GetDomain returns every key/value stored under domain.
	GetDomain(ctx context.Context, domain string) (map[string]json.RawMessage, bool, error)
}

// CommandStore holds the command registers. At most one entry exists per
// command name.
type CommandStore interface {
	// PutCommand stores info under name. A nil info stores FalseInfo.
	PutCommand(ctx context.Context, name string, info json.RawMessage) error

	// HasCommand reports whether name has a pending entry.
	HasCommand(ctx context.Context, name string) (bool, error)

	// GetCommand returns the info stored under name.
	GetCommand(ctx context.Context, name string) (json.RawMessage, bool, error)

	// ClearCommand removes name. Clearing a missing command is a no-op.
	ClearCommand(ctx context.Context, name string) error
}

// AlertStore holds alert records and the index from alert id to the
// composite ids raised under it.
type AlertStore interface {
	// TriggerAlert stores alert under its composite id and indexes it by
	// alert.ID. Re-triggering an existing composite id replaces the record
	// and returns the replaced one; a fresh alert returns nil.
	TriggerAlert(ctx context.Context, alert Alert) (*Alert, error)

	// Alerts returns every live alert ordered by composite id.
	Alerts(ctx context.Context) ([]Alert, error)

	// RecoverAlert removes every alert indexed under alertID together with
	// the index entry, and returns the removed records.
	RecoverAlert(ctx context.Context, alertID string) ([]Alert, error)

	// LiveAlertIDs returns the composite ids of every live alert, sorted.
	LiveAlertIDs(ctx context.Context) ([]string, error)
}

// ControlStore holds the engine stop record.
type ControlStore interface {
	// Stop records a stop request. The last call wins.
	Stop(ctx context.Context, state StopState) error

	// Stopped returns the stop record, or nil if the engine was never stopped.
	Stopped(ctx context.Context) (*StopState, error)
}

// Store is the full registry contract.
type Store interface {
	ValueStore
	CommandStore
	AlertStore
	ControlStore
	io.Closer
}

// CompositeSeparator joins owner and alert id in a composite id.
const CompositeSeparator = "::"

// Alert is one raised alert.
type Alert struct {
	Owner          string `json:"owner"`
	ID             string `json:"id"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
	AffectedPlugin string `json:"affected_plugin,omitempty"`
	Level          *int   `json:"level,omitempty"`
}

// CompositeID returns the storage key of the alert.
func (a Alert) CompositeID() string {
	return CompositeID(a.Owner, a.ID)
}

// CompositeID builds "<owner>::<alertID>".
func CompositeID(owner, alertID string) string {
	return owner + CompositeSeparator + alertID
}

// SplitCompositeID splits a composite id at the first separator.
func SplitCompositeID(compositeID string) (owner, alertID string, ok bool) {
	return strings.Cut(compositeID, CompositeSeparator)
}

// StopState is the engine stop record.
type StopState struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}
