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

// Package registrytest holds the behavior every registry.Store must share.
package registrytest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/registry"
)

// Factory returns a fresh, empty store. The store is closed by Run.
type Factory func(t *testing.T) registry.Store

// Run exercises store semantics against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("values", func(t *testing.T) { testValues(t, newStore(t)) })
	t.Run("stored false is not absent", func(t *testing.T) { testStoredFalse(t, newStore(t)) })
	t.Run("commands", func(t *testing.T) { testCommands(t, newStore(t)) })
	t.Run("alerts", func(t *testing.T) { testAlerts(t, newStore(t)) })
	t.Run("alerts shared id", func(t *testing.T) { testAlertsSharedID(t, newStore(t)) })
	t.Run("control", func(t *testing.T) { testControl(t, newStore(t)) })
}

func testValues(t *testing.T, s registry.Store) {
	defer s.Close()
	ctx := context.Background()

	ok, err := s.HasDomain(ctx, "plc")
	require.NoError(t, err)
	assert.False(t, ok, "never-written domain is absent")

	_, found, err := s.GetDomain(ctx, "plc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutValue(ctx, "plc", "temp", json.RawMessage(`21.5`)))
	require.NoError(t, s.PutValue(ctx, "plc", "mode", json.RawMessage(`{"auto":true}`)))

	v, found, err := s.GetValue(ctx, "plc", "temp")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `21.5`, string(v))

	ok, err = s.HasValue(ctx, "plc", "mode")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasValue(ctx, "plc", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.HasDomain(ctx, "plc")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.PutValue(ctx, "plc", "temp", json.RawMessage(`22`)))
	domain, found, err := s.GetDomain(ctx, "plc")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, domain, 2)
	assert.JSONEq(t, `22`, string(domain["temp"]))
	assert.JSONEq(t, `{"auto":true}`, string(domain["mode"]))

	_, found, err = s.GetValue(ctx, "other", "temp")
	require.NoError(t, err)
	assert.False(t, found, "keys are scoped to their domain")
}

func testStoredFalse(t *testing.T, s registry.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.PutValue(ctx, "flags", "armed", json.RawMessage(`false`)))
	v, found, err := s.GetValue(ctx, "flags", "armed")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `false`, string(v))

	require.NoError(t, s.PutValue(ctx, "flags", "nothing", json.RawMessage(`null`)))
	v, found, err = s.GetValue(ctx, "flags", "nothing")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `null`, string(v))
}

func testCommands(t *testing.T, s registry.Store) {
	defer s.Close()
	ctx := context.Background()

	_, found, err := s.GetCommand(ctx, "restart")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutCommand(ctx, "restart", nil))
	info, found, err := s.GetCommand(ctx, "restart")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `false`, string(info), "missing payload defaults to false")

	require.NoError(t, s.PutCommand(ctx, "restart", json.RawMessage(`{"delay":5}`)))
	info, _, err = s.GetCommand(ctx, "restart")
	require.NoError(t, err)
	assert.JSONEq(t, `{"delay":5}`, string(info), "put overwrites")

	ok, err := s.HasCommand(ctx, "restart")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.ClearCommand(ctx, "restart"))
	ok, err = s.HasCommand(ctx, "restart")
	require.NoError(t, err)
	assert.False(t, ok)
	_, found, err = s.GetCommand(ctx, "restart")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.ClearCommand(ctx, "never-put"), "clearing a missing command is a no-op")
}

func testAlerts(t *testing.T, s registry.Store) {
	defer s.Close()
	ctx := context.Background()

	level := 2
	a1 := registry.Alert{Owner: "p1", ID: "A1", Code: 5, Message: "overheat", Timestamp: 1700000000, AffectedPlugin: "heater", Level: &level}
	a2 := registry.Alert{Owner: "p1", ID: "A2", Code: 7, Message: "door open", Timestamp: 1700000001}

	replaced, err := s.TriggerAlert(ctx, a1)
	require.NoError(t, err)
	assert.Nil(t, replaced)
	replaced, err = s.TriggerAlert(ctx, a2)
	require.NoError(t, err)
	assert.Nil(t, replaced)

	alerts, err := s.Alerts(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff([]registry.Alert{a1, a2}, alerts); diff != "" {
		t.Errorf("Alerts() mismatch (-want +got):\n%s", diff)
	}

	ids, err := s.LiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1::A1", "p1::A2"}, ids)

	removed, err := s.RecoverAlert(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "p1::A1", removed[0].CompositeID())

	ids, err = s.LiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1::A2"}, ids)

	removed, err = s.RecoverAlert(ctx, "A1")
	require.NoError(t, err)
	assert.Empty(t, removed, "recovering twice is harmless")

	previous := a2
	a2.Code = 8
	replaced, err = s.TriggerAlert(ctx, a2)
	require.NoError(t, err)
	if diff := cmp.Diff(&previous, replaced); diff != "" {
		t.Errorf("TriggerAlert() replaced mismatch (-want +got):\n%s", diff)
	}
	alerts, err = s.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "re-trigger replaces the record")
	assert.Equal(t, 8, alerts[0].Code)
}

func testAlertsSharedID(t *testing.T, s registry.Store) {
	defer s.Close()
	ctx := context.Background()

	for _, a := range []registry.Alert{
		{Owner: "p1", ID: "A1", Code: 5},
		{Owner: "p2", ID: "A1", Code: 5},
		{Owner: "p2", ID: "B1", Code: 1},
	} {
		_, err := s.TriggerAlert(ctx, a)
		require.NoError(t, err)
	}

	removed, err := s.RecoverAlert(ctx, "A1")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	ids, err := s.LiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2::B1"}, ids)

	alerts, err := s.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "B1", alerts[0].ID)
}

func testControl(t *testing.T, s registry.Store) {
	defer s.Close()
	ctx := context.Background()

	state, err := s.Stopped(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, s.Stop(ctx, registry.StopState{Code: 2, Reason: "fault"}))
	state, err = s.Stopped(ctx)
	require.NoError(t, err)
	assert.Equal(t, &registry.StopState{Code: 2, Reason: "fault"}, state)

	require.NoError(t, s.Stop(ctx, registry.StopState{Code: 3, Reason: "operator"}))
	state, err = s.Stopped(ctx)
	require.NoError(t, err)
	assert.Equal(t, &registry.StopState{Code: 3, Reason: "operator"}, state, "last stop wins")
}
