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
)

const daemonEnv = "COMMOND_TEST_DAEMON"

// TestMain lets the test binary double as the daemon for ServerPlugin.
func TestMain(m *testing.M) {
	if os.Getenv(daemonEnv) == "1" {
		var opts daemon.RunOptions
		if err := daemon.ParseArgs(os.Args[1:], &opts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if err := daemon.Run(opts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type recordingEngine struct {
	mu     sync.Mutex
	code   int
	reason string
	calls  int
}

func (e *recordingEngine) Stop(code int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.code, e.reason = code, reason
	e.calls++
}

func daemonConfig(t *testing.T) ServerConfig {
	t.Helper()
	dir, err := os.MkdirTemp("", "cmds")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	return ServerConfig{
		Binary:          os.Args[0],
		Env:             append(os.Environ(), daemonEnv+"=1", "LOG_LEVEL=error"),
		Network:         config.NetworkUnix,
		Address:         filepath.Join(dir, "commond.sock"),
		CoordinationDir: filepath.Join(dir, "coord"),
		LogPath:         filepath.Join(dir, "commond.log"),
		StartTimeout:    10 * time.Second,
	}
}

func TestServerConfig_LaunchArgs(t *testing.T) {
	unix := ServerConfig{Network: config.NetworkUnix, Address: "/tmp/c.sock"}
	assert.Equal(t, []string{"unix", "/tmp/c.sock"}, unix.LaunchArgs())
	assert.Equal(t, "unix:///tmp/c.sock", unix.Transport().String())

	inet := ServerConfig{
		Args:            []string{"--config", "c.yaml"},
		Network:         config.NetworkInet,
		Address:         "127.0.0.1",
		Port:            9001,
		CoordinationDir: "/var/run/coord",
	}
	assert.Equal(t,
		[]string{"--config", "c.yaml", "inet", "127.0.0.1", "9001", "/var/run/coord"},
		inet.LaunchArgs())
	assert.Equal(t, "tcp://127.0.0.1:9001", inet.Transport().String())
}

func TestServerPlugin_NotStarted(t *testing.T) {
	p := NewServerPlugin(ServerConfig{}, nil, log.Discard())
	_, err := p.Update(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, p.Management())
	assert.Zero(t, p.PID())
	assert.NoError(t, p.TearDown())
}

func TestServerPlugin_Lifecycle(t *testing.T) {
	cfg := daemonConfig(t)
	engine := &recordingEngine{}
	p := NewServerPlugin(cfg, engine, log.Discard())
	ctx := context.Background()

	require.NoError(t, p.Setup(ctx, "engine"))
	defer p.TearDown()
	assert.NotZero(t, p.PID())
	running := filepath.Join(cfg.CoordinationDir, "running")
	require.Eventually(t, func() bool {
		_, err := os.Stat(running)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	stopped, err := p.Update(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)

	other, err := client.New(cfg.Transport(), "hmi")
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Stop(ctx, 4, "operator"))

	stopped, err = p.Update(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.Equal(t, 1, engine.calls)
	assert.Equal(t, 4, engine.code)
	assert.Equal(t, "operator", engine.reason)

	require.NoError(t, p.TearDown())
	assert.Zero(t, p.PID())
	assert.NoFileExists(t, cfg.Address)
	assert.NoFileExists(t, running)
}

func TestServerPlugin_SetupFailsWhenDaemonExits(t *testing.T) {
	cfg := daemonConfig(t)
	cfg.Args = []string{"bogus"}
	cfg.Network = "bogus"
	p := NewServerPlugin(cfg, nil, log.Discard())

	// LaunchArgs treats an unknown network as unix, so the leading
	// "bogus" argument makes the daemon reject its arguments and exit.
	err := p.Setup(context.Background(), "engine")
	require.Error(t, err)
	assert.Nil(t, p.Management())
}
