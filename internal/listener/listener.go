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

// Package listener opens the daemon's Unix or TCP socket.
package listener

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tombee/commond/internal/config"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

// ErrAddressInUse is returned when a live daemon already answers on the
// socket path.
var ErrAddressInUse = errors.New("another daemon is listening on this socket")

// New opens the listener described by cfg. Failures are *errors.ListenError
// so the caller can map them to exit codes.
func New(cfg config.ListenConfig) (net.Listener, error) {
	if cfg.Network == config.NetworkInet {
		return newTCPListener(cfg)
	}
	return newUnixListener(cfg.SocketPath)
}

// newUnixListener creates a Unix socket listener, replacing a stale socket
// file left by a daemon that did not shut down cleanly.
func newUnixListener(socketPath string) (net.Listener, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, commonderrors.NewListenError("unix", socketPath, fmt.Errorf("failed to create socket directory: %w", err))
	}

	if _, err := os.Stat(socketPath); err == nil {
		if isAlive(socketPath) {
			return nil, commonderrors.NewListenError("unix", socketPath, ErrAddressInUse)
		}
		if err := os.Remove(socketPath); err != nil {
			return nil, commonderrors.NewListenError("unix", socketPath, fmt.Errorf("failed to remove stale socket: %w", err))
		}
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, commonderrors.NewListenError("unix", socketPath, err)
	}

	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, commonderrors.NewListenError("unix", socketPath, fmt.Errorf("failed to set socket permissions: %w", err))
	}

	// The server removes the file itself during shutdown.
	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}

	return ln, nil
}

// newTCPListener creates a TCP listener. Non-loopback hosts require
// AllowRemote.
func newTCPListener(cfg config.ListenConfig) (net.Listener, error) {
	addr := cfg.Address()
	if !cfg.AllowRemote && IsRemoteHost(cfg.Host) {
		return nil, commonderrors.NewListenError("inet", addr, fmt.Errorf(
			"binding to %s exposes the registers to the network; set daemon.listen.allow_remote to allow it", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, commonderrors.NewListenError("inet", addr, err)
	}
	return ln, nil
}

// IsRemoteHost reports whether host binds beyond the loopback interface.
func IsRemoteHost(host string) bool {
	switch host {
	case "localhost":
		return false
	case "", "0.0.0.0", "::":
		return true
	}
	ip := net.ParseIP(host)
	return ip == nil || !ip.IsLoopback()
}

func isAlive(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return !errors.Is(err, syscall.ECONNREFUSED) && !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ENOTSOCK)
	}
	conn.Close()
	return true
}
