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

package listener

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/config"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

func shortSocketPath(t *testing.T) string {
	t.Helper()
	// Unix socket paths are limited to ~100 bytes; t.TempDir can exceed it.
	dir, err := os.MkdirTemp("", "cmd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "sub", "commond.sock")
}

func TestNew_Unix(t *testing.T) {
	path := shortSocketPath(t)

	ln, err := New(config.ListenConfig{Network: config.NetworkUnix, SocketPath: path})
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNew_UnixStaleSocket(t *testing.T) {
	path := shortSocketPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := New(config.ListenConfig{Network: config.NetworkUnix, SocketPath: path})
	require.NoError(t, err)
	ln.Close()
}

func TestNew_UnixInUse(t *testing.T) {
	path := shortSocketPath(t)
	first, err := New(config.ListenConfig{Network: config.NetworkUnix, SocketPath: path})
	require.NoError(t, err)
	defer first.Close()

	go func() {
		for {
			c, err := first.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	_, err = New(config.ListenConfig{Network: config.NetworkUnix, SocketPath: path})
	require.Error(t, err)

	var le *commonderrors.ListenError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, commonderrors.ListenBind, le.Kind)
	assert.Equal(t, -2, le.ExitCode())
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestNew_TCP(t *testing.T) {
	ln, err := New(config.ListenConfig{Network: config.NetworkInet, Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer ln.Close()

	_, ok := ln.Addr().(*net.TCPAddr)
	assert.True(t, ok)
}

func TestNew_TCPRemoteRefused(t *testing.T) {
	_, err := New(config.ListenConfig{Network: config.NetworkInet, Host: "0.0.0.0", Port: 0})
	require.Error(t, err)

	var le *commonderrors.ListenError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, err.Error(), "allow_remote")
}

func TestNew_TCPPortInUse(t *testing.T) {
	first, err := New(config.ListenConfig{Network: config.NetworkInet, Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	defer first.Close()

	port := first.Addr().(*net.TCPAddr).Port
	_, err = New(config.ListenConfig{Network: config.NetworkInet, Host: "127.0.0.1", Port: port})
	require.Error(t, err)

	var le *commonderrors.ListenError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, -2, le.ExitCode())
}

func TestIsRemoteHost(t *testing.T) {
	tests := map[string]bool{
		"":          true,
		"0.0.0.0":   true,
		"::":        true,
		"10.0.0.5":  true,
		"plc.local": true,
		"localhost": false,
		"127.0.0.1": false,
		"127.0.0.2": false,
		"::1":       false,
	}
	for host, want := range tests {
		assert.Equal(t, want, IsRemoteHost(host), host)
	}
}
