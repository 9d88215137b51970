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

package daemon

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/config"
	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir, err := os.MkdirTemp("", "cmdd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Daemon.Listen.SocketPath = filepath.Join(dir, "commond.sock")
	cfg.Daemon.CoordinationDir = filepath.Join(dir, "coord")
	cfg.Daemon.PIDFile = filepath.Join(dir, "run", "commond.pid")
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, context.CancelFunc, <-chan error) {
	t.Helper()
	d, err := New(cfg, Options{Version: "test"}, log.Discard())
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
	return d, cancel, errCh
}

func send(t *testing.T, conn net.Conn, r *bufio.Reader, line string) *protocol.Reply {
	t.Helper()
	_, err := conn.Write([]byte(line))
	require.NoError(t, err)
	data, err := r.ReadBytes(protocol.Terminator)
	require.NoError(t, err)
	reply, err := protocol.DecodeReply(data)
	require.NoError(t, err)
	return reply
}

func TestDaemon_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	d, cancel, errCh := startDaemon(t, cfg)

	coord := cfg.Daemon.CoordinationDir
	assert.FileExists(t, filepath.Join(coord, "running"))
	assert.FileExists(t, cfg.Daemon.PIDFile)

	conn, err := net.Dial("unix", cfg.Daemon.Listen.SocketPath)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	assert.True(t, send(t, conn, r, `putv ["plc","speed",12]`).Truthy())
	reply := send(t, conn, r, `getv ["plc"]`)
	assert.JSONEq(t, `{"speed":12}`, string(reply.Value))

	send(t, conn, r, `alrt ["plc","A1",7,"overheat",1700000000,"temp",2]`)
	alertFile := filepath.Join(coord, "alrt-plc-A1-7")
	assert.FileExists(t, alertFile)

	send(t, conn, r, `alrtq ["A1"]`)
	assert.NoFileExists(t, alertFile)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Shutdown(context.Background()))

	assert.NoFileExists(t, cfg.Daemon.Listen.SocketPath)
	assert.NoFileExists(t, filepath.Join(coord, "running"))
	assert.NoFileExists(t, cfg.Daemon.PIDFile)
}

func TestDaemon_SecondInstanceFailsToBind(t *testing.T) {
	cfg := testConfig(t)
	first, cancel, errCh := startDaemon(t, cfg)
	defer func() {
		cancel()
		<-errCh
		first.Shutdown(context.Background())
	}()

	second := *cfg
	second.Daemon.PIDFile = ""
	second.Daemon.CoordinationDir = ""
	d, err := New(&second, Options{}, log.Discard())
	require.NoError(t, err)
	defer d.Shutdown(context.Background())

	err = d.Start(context.Background())
	require.Error(t, err)

	var le *commonderrors.ListenError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, -2, le.ExitCode())

	// The losing daemon must not remove the winner's socket.
	require.NoError(t, d.Shutdown(context.Background()))
	assert.FileExists(t, cfg.Daemon.Listen.SocketPath)
}

func TestDaemon_SQLiteBackendPersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Daemon.CoordinationDir = ""
	cfg.Daemon.PIDFile = ""
	cfg.Daemon.Backend.Type = config.BackendSQLite
	cfg.Daemon.Backend.SQLite.Path = filepath.Join(t.TempDir(), "registers.db")

	d, cancel, errCh := startDaemon(t, cfg)
	conn, err := net.Dial("unix", cfg.Daemon.Listen.SocketPath)
	require.NoError(t, err)
	send(t, conn, bufio.NewReader(conn), `stop [3,"operator"]`)
	conn.Close()
	cancel()
	<-errCh
	require.NoError(t, d.Shutdown(context.Background()))

	d, cancel, errCh = startDaemon(t, cfg)
	defer func() {
		cancel()
		<-errCh
		d.Shutdown(context.Background())
	}()
	conn, err = net.Dial("unix", cfg.Daemon.Listen.SocketPath)
	require.NoError(t, err)
	defer conn.Close()
	reply := send(t, conn, bufio.NewReader(conn), `stopped`)
	assert.JSONEq(t, `{"code":3,"reason":"operator"}`, string(reply.Value))
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	_, err := openStore(config.BackendConfig{Type: "redis"})
	assert.Error(t, err)
}

func TestShutdown_NothingAcquired(t *testing.T) {
	assert.NoError(t, shutdown(context.Background(), log.Discard(), 0, resources{}))
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, RunOptions{Network: "inet", Host: "127.0.0.1", Port: 9400, CoordinationDir: "/tmp/coord"})

	assert.Equal(t, config.NetworkInet, cfg.Daemon.Listen.Network)
	assert.Equal(t, "127.0.0.1:9400", cfg.Daemon.Listen.Address())
	assert.Equal(t, "/tmp/coord", cfg.Daemon.CoordinationDir)
	require.NoError(t, cfg.Validate())
}
