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
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tombee/commond/internal/config"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

// DefaultDialTimeout bounds connection setup.
const DefaultDialTimeout = 5 * time.Second

// Transport describes where the daemon listens.
type Transport struct {
	// Network is "unix" or "tcp".
	Network string

	// Address is the socket path or host:port.
	Address string

	// DialTimeout bounds connection setup. Zero uses DefaultDialTimeout.
	DialTimeout time.Duration
}

// NewUnixTransport returns a transport for a Unix socket.
func NewUnixTransport(socketPath string) *Transport {
	return &Transport{Network: "unix", Address: socketPath}
}

// NewTCPTransport returns a transport for host:port.
func NewTCPTransport(addr string) *Transport {
	return &Transport{Network: "tcp", Address: addr}
}

// DefaultTransport uses the default socket path.
func DefaultTransport() *Transport {
	return NewUnixTransport(config.DefaultSocketPath())
}

// ParseHost parses unix:///path or tcp://host:port. An empty host yields
// the default transport.
func ParseHost(host string) (*Transport, error) {
	switch {
	case host == "":
		return DefaultTransport(), nil
	case strings.HasPrefix(host, "unix://"):
		path := strings.TrimPrefix(host, "unix://")
		if path == "" {
			return nil, fmt.Errorf("invalid host %q: missing socket path", host)
		}
		return NewUnixTransport(path), nil
	case strings.HasPrefix(host, "tcp://"):
		addr := strings.TrimPrefix(host, "tcp://")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, fmt.Errorf("invalid host %q: %w", host, err)
		}
		return NewTCPTransport(addr), nil
	default:
		return nil, fmt.Errorf("invalid host format: %s (must start with unix:// or tcp://)", host)
	}
}

// String returns the transport in ParseHost form.
func (t *Transport) String() string {
	if t.Network == "unix" {
		return "unix://" + t.Address
	}
	return "tcp://" + t.Address
}

// Dial connects to the daemon. Failures are *errors.ConnectionError.
func (t *Transport) Dial(ctx context.Context) (net.Conn, error) {
	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, t.Network, t.Address)
	if err != nil {
		return nil, &commonderrors.ConnectionError{Network: t.Network, Address: t.Address, Err: err}
	}
	return conn, nil
}
