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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/registry"
)

func TestNewLoop_Interval(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, NewLoop(nil, 10, nil, nil).Interval())
	assert.Equal(t, time.Second, NewLoop(nil, 0, nil, nil).Interval())
	assert.Equal(t, 2*time.Second, NewLoop(nil, 0.5, nil, nil).Interval())
}

func TestLoop_RunsUntilCanceled(t *testing.T) {
	tr := startDaemon(t)
	m := newManagement(t, tr, "plc")

	var cycles atomic.Int32
	loop := NewLoop(m, 200, func(ctx context.Context, m *Management) error {
		if cycles.Add(1)%2 == 0 {
			return errors.New("flaky")
		}
		return nil
	}, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return cycles.Load() >= 5 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestLoop_ReconcilesEachCycle(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	plc := newManagement(t, tr, "plc")
	hmi := newManagement(t, tr, "hmi")

	recovered := make(chan string, 1)
	require.NoError(t, plc.TriggerAlert(ctx, registry.Alert{ID: "A1", Code: 2, Message: "jam"},
		func(a registry.Alert) { recovered <- a.ID }))

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go NewLoop(plc, 100, nil, log.Discard()).Run(loopCtx)

	require.NoError(t, hmi.RecoverAlert(ctx, "A1"))
	select {
	case id := <-recovered:
		assert.Equal(t, "A1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("recovery callback did not run")
	}
}

func TestLoop_EndsWhenEngineStopped(t *testing.T) {
	tr := startDaemon(t)
	ctx := context.Background()
	m := newManagement(t, tr, "plc")

	var cycles atomic.Int32
	loop := NewLoop(m, 100, func(ctx context.Context, m *Management) error {
		if cycles.Add(1) == 3 {
			return m.StopEngine(ctx, 1, "done")
		}
		return nil
	}, log.Discard())

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not end after stop")
	}
	assert.Equal(t, int32(3), cycles.Load())
}
