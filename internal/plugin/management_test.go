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

package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/config"
	"github.com/tombee/commond/internal/daemon"
	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/registry"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

// startDaemon runs an in-process daemon on a fresh unix socket.
func startDaemon(t *testing.T) *client.Transport {
	t.Helper()
	dir, err := os.MkdirTemp("", "cmdp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Daemon.Listen.SocketPath = filepath.Join(dir, "commond.sock")

	d, err := daemon.New(cfg, daemon.Options{Version: "test"}, log.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("daemon failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		<-errCh
		d.Shutdown(context.Background())
	})
	return client.NewUnixTransport(cfg.Daemon.Listen.SocketPath)
}

func newManagement(t *testing.T, tr *client.Transport, owner string) *Management {
	t.Helper()
	c, err := client.New(tr, owner)
	require.NoError(t, err)
	m := NewManagement(c, log.Discard())
	t.Cleanup(func() { m.TearDown() })
	return m
}

func TestManagement_RecoveredByOtherOwner(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	plc := newManagement(t, tr, "plc")
	hmi := newManagement(t, tr, "hmi")

	var mu sync.Mutex
	var recovered []string
	onRecover := func(a registry.Alert) {
		mu.Lock()
		defer mu.Unlock()
		recovered = append(recovered, a.Owner+"/"+a.ID)
	}

	require.NoError(t, plc.TriggerAlert(ctx, registry.Alert{ID: "A1", Code: 7, Message: "overheat"}, onRecover))
	require.NoError(t, plc.TriggerAlert(ctx, registry.Alert{ID: "A2", Code: 8, Message: "low oil"}, onRecover))
	require.NoError(t, hmi.TriggerAlert(ctx, registry.Alert{ID: "A1", Code: 7, Message: "overheat"}, nil))

	require.NoError(t, plc.BeginCycle(ctx))
	assert.Empty(t, recovered)
	assert.Equal(t, 3, plc.PendingAlertCount())
	assert.False(t, plc.IsAlertRecovered("A1"))

	// The operator station clears A1 for every owner.
	require.NoError(t, hmi.RecoverAlert(ctx, "A1"))
	assert.True(t, hmi.IsAlertRecovered("A1"))

	require.NoError(t, plc.BeginCycle(ctx))
	assert.Equal(t, []string{"plc/A1"}, recovered)
	assert.True(t, plc.IsAlertRecovered("A1"))
	assert.False(t, plc.IsAlertRecovered("A2"))
	assert.Equal(t, 1, plc.PendingAlertCount())
	assert.ElementsMatch(t, []string{"A2"}, plc.TrackedAlerts())

	// A callback runs only once.
	require.NoError(t, plc.BeginCycle(ctx))
	assert.Len(t, recovered, 1)
}

func TestManagement_LocalRecoverSkipsCallback(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	m := newManagement(t, tr, "plc")

	called := false
	require.NoError(t, m.TriggerAlert(ctx, registry.Alert{ID: "A1", Code: 1, Message: "x"},
		func(registry.Alert) { called = true }))
	require.NoError(t, m.RecoverAlert(ctx, "A1"))
	require.NoError(t, m.BeginCycle(ctx))

	assert.False(t, called)
	assert.True(t, m.IsAlertRecovered("A1"))
	assert.Equal(t, 0, m.PendingAlertCount())
}

func TestManagement_InFlightAlertSkipsCycle(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	m := newManagement(t, tr, "plc")

	calls := 0
	alert := registry.Alert{Owner: "plc", ID: "A1", Code: 1}
	token := m.track(alert, func(registry.Alert) { calls++ })

	// The daemon has not seen A1 yet.
	require.NoError(t, m.BeginCycle(ctx))
	assert.Equal(t, 0, calls)
	assert.False(t, m.IsAlertRecovered("A1"))

	// Settled but still not live: the request failed, so the next cycle
	// reconciles it.
	m.settle("A1", token)
	require.NoError(t, m.BeginCycle(ctx))
	assert.Equal(t, 1, calls)
	assert.True(t, m.IsAlertRecovered("A1"))
}

func TestManagement_SettleIgnoresSupersededTrigger(t *testing.T) {
	tr := startDaemon(t)
	m := newManagement(t, tr, "plc")

	alert := registry.Alert{Owner: "plc", ID: "A1", Code: 1}
	first := m.track(alert, nil)
	alert.Code = 2
	m.track(alert, nil)
	m.settle("A1", first)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.True(t, m.tracked["A1"].inFlight)
	assert.Equal(t, 2, m.tracked["A1"].alert.Code)
}

func TestManagement_ConcurrentTriggerAndCycle(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	m := newManagement(t, tr, "plc")

	var (
		mu       sync.Mutex
		spurious []string
	)
	onRecover := func(a registry.Alert) {
		mu.Lock()
		spurious = append(spurious, a.ID)
		mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			assert.NoError(t, m.TriggerAlert(ctx, registry.Alert{ID: fmt.Sprintf("A%d", i), Code: i}, onRecover))
		}
	}()
	for {
		require.NoError(t, m.BeginCycle(ctx))
		select {
		case <-done:
			require.NoError(t, m.BeginCycle(ctx))
			mu.Lock()
			defer mu.Unlock()
			assert.Empty(t, spurious, "live alerts must never be reported recovered")
			assert.Len(t, m.TrackedAlerts(), 50)
			return
		default:
		}
	}
}

func TestManagement_UntrackedAlertIsRecovered(t *testing.T) {
	tr := startDaemon(t)
	m := newManagement(t, tr, "plc")
	assert.True(t, m.IsAlertRecovered("never-raised"))
}

func TestManagement_StopEngine(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	m := newManagement(t, tr, "plc")

	state, err := m.IsEngineStopped(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, m.StopEngine(ctx, 3, "maintenance"))
	state, err = newManagement(t, tr, "hmi").IsEngineStopped(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 3, state.Code)
	assert.Equal(t, "maintenance", state.Reason)
}

func TestManagement_BeginCycleUnreachable(t *testing.T) {
	dir := t.TempDir()
	c, err := client.New(client.NewUnixTransport(filepath.Join(dir, "missing.sock")), "plc")
	require.NoError(t, err)
	m := NewManagement(c, log.Discard())

	err = m.BeginCycle(context.Background())
	var connErr *commonderrors.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}
