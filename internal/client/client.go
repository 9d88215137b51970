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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client: closed")

// Client is a connection to commond on behalf of one owner. It is safe for
// concurrent use; calls are serialized.
type Client struct {
	transport     *Transport
	owner         string
	logger        *slog.Logger
	timeout       time.Duration
	unlinkOnClose bool

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithTimeout bounds each request round trip when the context carries no
// deadline. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("timeout must be non-negative, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithUnlinkOnClose removes the Unix socket file when the client closes.
// Only a host that owns the daemon should set it.
func WithUnlinkOnClose() Option {
	return func(c *Client) error {
		c.unlinkOnClose = true
		return nil
	}
}

// New returns a client for owner. No connection is made until the first
// call.
func New(transport *Transport, owner string, opts ...Option) (*Client, error) {
	if transport == nil {
		transport = DefaultTransport()
	}
	c := &Client{
		transport: transport,
		owner:     owner,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = log.WithOwner(log.WithComponent(c.logger, "client"), owner)
	return c, nil
}

// Owner returns the owner identifier alerts are raised under.
func (c *Client) Owner() string {
	return c.owner
}

// Transport returns the daemon address.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Call sends one request and returns the daemon's reply. Error replies are
// returned as *errors.ProtocolError alongside the reply.
func (c *Client) Call(ctx context.Context, method string, args ...any) (*protocol.Reply, error) {
	req, err := protocol.NewRequest(method, args...)
	if err != nil {
		return nil, err
	}
	line, err := req.Encode()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	data, err := c.roundTripLocked(ctx, line)
	if err != nil {
		// The stream position is unknown now; start over on the next call.
		c.dropLocked()
		return nil, commonderrors.Wrap(err, method)
	}

	reply, err := protocol.DecodeReply(data)
	if err != nil {
		c.dropLocked()
		return nil, commonderrors.Wrap(err, method)
	}

	if reply.Status == protocol.StatusError && reply.Error != nil {
		return reply, &commonderrors.ProtocolError{Method: method, Code: reply.Error.Code, Message: reply.Error.Message}
	}
	return reply, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.transport.Dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn
	log.Trace(c.logger, "connected", log.String("address", c.transport.String()))
	return nil
}

func (c *Client) roundTripLocked(ctx context.Context, line []byte) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := c.conn.Write(line); err != nil {
		return nil, err
	}
	return readReply(c.conn)
}

// readReply reads up to and including the terminator. Replies larger than
// MaxReplySize are rejected.
func readReply(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 512)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if i := bytes.IndexByte(buf, protocol.Terminator); i >= 0 {
			return buf[:i+1], nil
		}
		if len(buf) > protocol.MaxReplySize {
			return nil, protocol.ErrReplyTooLarge
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close sends exit, closes the connection and, with WithUnlinkOnClose,
// removes the socket file. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if _, werr := c.conn.Write([]byte(protocol.ExitCommand)); werr != nil {
			c.logger.Debug("exit not delivered", log.Error(werr))
		}
		err = c.conn.Close()
		c.conn = nil
	}

	if c.unlinkOnClose && c.transport.Network == "unix" {
		if rerr := os.Remove(c.transport.Address); rerr != nil && !os.IsNotExist(rerr) {
			err = errors.Join(err, rerr)
		}
	}
	return err
}
