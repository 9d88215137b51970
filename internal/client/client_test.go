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

package client

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/dispatch"
	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
	"github.com/tombee/commond/internal/registry"
	"github.com/tombee/commond/internal/registry/memory"
	"github.com/tombee/commond/internal/server"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "cmdc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "commond.sock")
}

func startServer(t *testing.T) (*server.Server, *Transport) {
	t.Helper()
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	srv := server.New(ln, dispatch.New(memory.New(), dispatch.WithLogger(log.Discard())), server.Config{Logger: log.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, NewUnixTransport(path)
}

func newClient(t *testing.T, tr *Transport, owner string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard()), WithTimeout(5 * time.Second)}, opts...)
	c, err := New(tr, owner, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Values(t *testing.T) {
	_, tr := startServer(t)
	c := newClient(t, tr, "plc")
	ctx := context.Background()

	require.NoError(t, c.PutValue(ctx, "plc", "speed", 42))
	require.NoError(t, c.PutValue(ctx, "plc", "enabled", false))

	var speed int
	found, err := c.GetValue(ctx, "plc", "speed", &speed)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, speed)

	// A stored false is found; a missing key is not.
	enabled := true
	found, err = c.GetValue(ctx, "plc", "enabled", &enabled)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, enabled)

	_, found, err = c.GetValueRaw(ctx, "plc", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	has, err := c.HasValue(ctx, "plc", "speed")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = c.HasDomain(ctx, "hmi")
	require.NoError(t, err)
	assert.False(t, has)

	domain, found, err := c.GetDomain(ctx, "plc")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `42`, string(domain["speed"]))
	assert.JSONEq(t, `false`, string(domain["enabled"]))
}

func TestClient_CommandsAndControl(t *testing.T) {
	_, tr := startServer(t)
	c := newClient(t, tr, "hmi")
	ctx := context.Background()

	require.NoError(t, c.PutCommand(ctx, "home", nil))
	require.NoError(t, c.PutCommand(ctx, "move", map[string]int{"x": 3}))

	info, found, err := c.GetCommand(ctx, "home")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `false`, string(info))

	info, _, err = c.GetCommand(ctx, "move")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":3}`, string(info))

	require.NoError(t, c.ClearCommand(ctx, "move"))
	has, err := c.HasCommand(ctx, "move")
	require.NoError(t, err)
	assert.False(t, has)

	state, err := c.Stopped(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, c.Stop(ctx, 2, "estop"))
	state, err = c.Stopped(ctx)
	require.NoError(t, err)
	assert.Equal(t, &registry.StopState{Code: 2, Reason: "estop"}, state)
}

func TestClient_Alerts(t *testing.T) {
	_, tr := startServer(t)
	plc := newClient(t, tr, "plc")
	hmi := newClient(t, tr, "hmi")
	ctx := context.Background()

	level := 2
	require.NoError(t, plc.TriggerAlert(ctx, registry.Alert{ID: "A1", Code: 7, Message: "overheat", Timestamp: 100, AffectedPlugin: "temp", Level: &level}))
	require.NoError(t, hmi.TriggerAlert(ctx, registry.Alert{ID: "A1", Code: 7}))

	alerts, err := plc.Alerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "hmi", alerts[0].Owner)
	assert.NotZero(t, alerts[0].Timestamp)
	assert.Equal(t, "plc", alerts[1].Owner)
	assert.Equal(t, "A1", alerts[1].ID)
	assert.Equal(t, 2, *alerts[1].Level)

	ids, err := hmi.LiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{registry.CompositeID("hmi", "A1"), registry.CompositeID("plc", "A1")}, ids)

	require.NoError(t, hmi.RecoverAlert(ctx, "A1"))
	ids, err = plc.LiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestClient_ProtocolError(t *testing.T) {
	_, tr := startServer(t)
	c := newClient(t, tr, "plc")

	reply, err := c.Call(context.Background(), "nosuch", 1)
	require.Error(t, err)
	require.NotNil(t, reply)

	var pe *commonderrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, protocol.CodeUnknownCommand, pe.Code)

	// The connection survives an error reply.
	require.NoError(t, c.PutValue(context.Background(), "d", "k", 1))
}

func TestClient_RequestTooLarge(t *testing.T) {
	_, tr := startServer(t)
	c := newClient(t, tr, "plc")

	big := make([]byte, protocol.MaxRequestSize)
	for i := range big {
		big[i] = 'x'
	}
	err := c.PutValue(context.Background(), "d", "k", string(big))
	assert.ErrorIs(t, err, protocol.ErrRequestTooLarge)
}

func TestClient_ConnectionError(t *testing.T) {
	tr := NewUnixTransport(filepath.Join(socketPath(t), "missing.sock"))
	c := newClient(t, tr, "plc")

	err := c.PutValue(context.Background(), "d", "k", 1)
	require.Error(t, err)

	var ce *commonderrors.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, tr.Address, ce.Address)
	assert.Equal(t, "unix", ce.Network)
}

func TestClient_CloseSendsExit(t *testing.T) {
	srv, tr := startServer(t)
	c := newClient(t, tr, "plc")

	require.NoError(t, c.PutValue(context.Background(), "d", "k", 1))
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 0 }, 5*time.Second, 10*time.Millisecond)

	_, err := c.Call(context.Background(), protocol.MethodStopped)
	assert.ErrorIs(t, err, ErrClosed)

	// The socket stays for other clients.
	assert.FileExists(t, tr.Address)
}

func TestClient_UnlinkOnClose(t *testing.T) {
	_, tr := startServer(t)
	c := newClient(t, tr, "host", WithUnlinkOnClose())

	require.NoError(t, c.Close())
	assert.NoFileExists(t, tr.Address)
}

func TestClient_ReconnectsAfterServerDrop(t *testing.T) {
	path := socketPath(t)
	tr := NewUnixTransport(path)
	c := newClient(t, tr, "plc")

	// A daemon that replies once and hangs up.
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, protocol.MaxRequestSize)
			conn.Read(buf)
			conn.Write(protocol.OKTrue().Encode())
			conn.Close()
		}
	}()

	require.NoError(t, c.PutValue(context.Background(), "d", "k", 1))
	err = c.PutValue(context.Background(), "d", "k", 2)
	require.Error(t, err)
	require.NoError(t, c.PutValue(context.Background(), "d", "k", 3))
}

func TestReadReply_TooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		b.Write(make([]byte, protocol.MaxReplySize+10))
	}()
	_, err := readReply(a)
	assert.ErrorIs(t, err, protocol.ErrReplyTooLarge)
}

func TestParseHost(t *testing.T) {
	tests := []struct {
		host    string
		network string
		address string
		wantErr bool
	}{
		{host: "unix:///run/commond.sock", network: "unix", address: "/run/commond.sock"},
		{host: "tcp://127.0.0.1:9400", network: "tcp", address: "127.0.0.1:9400"},
		{host: "tcp://127.0.0.1", wantErr: true},
		{host: "unix://", wantErr: true},
		{host: "https://plc:443", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			tr, err := ParseHost(tt.host)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.network, tr.Network)
			assert.Equal(t, tt.address, tr.Address)
			assert.Equal(t, tt.host, tr.String())
		})
	}

	tr, err := ParseHost("")
	require.NoError(t, err)
	assert.Equal(t, "unix", tr.Network)
}

func TestNew_InvalidTimeout(t *testing.T) {
	_, err := New(nil, "plc", WithTimeout(-time.Second))
	assert.Error(t, err)
}

func TestGetValue_DecodesIntoStruct(t *testing.T) {
	_, tr := startServer(t)
	c := newClient(t, tr, "plc")
	ctx := context.Background()

	type axis struct {
		Pos float64 `json:"pos"`
	}
	require.NoError(t, c.PutValue(ctx, "motion", "x", axis{Pos: 1.5}))

	var got axis
	found, err := c.GetValue(ctx, "motion", "x", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, axis{Pos: 1.5}, got)

	var raw json.RawMessage
	_, err = c.GetValue(ctx, "motion", "x", &raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pos":1.5}`, string(raw))
}
