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

// Package server runs the single-threaded request reactor of commond.
//
// Socket I/O happens on helper goroutines, but every request is handled on
// the goroutine that called Serve, one at a time. Registers therefore need
// no locking. Pending connections are always admitted before any queued
// request is serviced.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
)

var (
	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server: closed")

	// ErrAlreadyServing is returned by a second call to Serve.
	ErrAlreadyServing = errors.New("server: already serving")
)

// DefaultMaxClients is the connection limit when Config leaves it unset.
const DefaultMaxClients = 10

// Dispatcher handles one request line and produces its reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, line []byte) *protocol.Reply
}

// Config configures the server.
type Config struct {
	// MaxClients bounds concurrently connected clients. Connections beyond
	// it are accepted and closed immediately.
	MaxClients int

	// WriteTimeout bounds each reply write. Zero means no deadline.
	WriteTimeout time.Duration

	// Logger receives connection and request logs.
	Logger *slog.Logger
}

// Server owns a listener and the connected clients.
type Server struct {
	ln         net.Listener
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger
	requests   *log.RequestMiddleware

	// refusals throttles the capacity warning under connection floods.
	refusals rate.Sometimes

	acceptCh  chan net.Conn
	acceptErr chan error
	readCh    chan readEvent

	// conns is only touched by the reactor goroutine.
	conns  map[string]*conn
	active atomic.Int64

	serving   atomic.Bool
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type conn struct {
	id     string
	nc     net.Conn
	remote string
	logger *slog.Logger

	// resume tells the reader whether to read again after a request has
	// been serviced.
	resume chan bool
}

type readEvent struct {
	c    *conn
	data []byte
	err  error
}

// New creates a server for ln. It does not start accepting until Serve.
func New(ln net.Listener, d Dispatcher, cfg Config) *Server {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := log.WithComponent(cfg.Logger, "server")

	return &Server{
		ln:         ln,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
		requests:   log.NewRequestMiddleware(logger),
		refusals:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
		acceptCh:   make(chan net.Conn),
		acceptErr:  make(chan error, 1),
		readCh:     make(chan readEvent),
		conns:      make(map[string]*conn),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// ActiveConnections returns the number of connected clients.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Serve runs the reactor until ctx is cancelled, Close is called, or the
// listener fails. All client connections are closed before it returns.
// A cancelled context returns nil.
func (s *Server) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer s.teardown()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("accepting connections", "addr", s.ln.Addr().String(), "max_clients", s.cfg.MaxClients)

	for {
		// New connections take priority over queued requests.
		select {
		case nc := <-s.acceptCh:
			s.admit(nc)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return ErrServerClosed
		case err := <-s.acceptErr:
			return fmt.Errorf("accept failed: %w", err)
		case nc := <-s.acceptCh:
			s.admit(nc)
		case ev := <-s.readCh:
			s.service(ctx, ev)
		}
	}
}

// Close stops a running Serve. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
			case s.acceptErr <- err:
			}
			return
		}
		select {
		case s.acceptCh <- nc:
		case <-s.done:
			nc.Close()
			return
		}
	}
}

func (s *Server) admit(nc net.Conn) {
	remote := remoteAddr(nc)

	if len(s.conns) >= s.cfg.MaxClients {
		connectionsRefused.Inc()
		s.refusals.Do(func() {
			s.logger.Warn("connection refused: too many clients",
				log.RemoteKey, remote,
				"max_clients", s.cfg.MaxClients)
		})
		nc.Close()
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		nc:     nc,
		remote: remote,
		resume: make(chan bool, 1),
	}
	c.logger = log.WithConn(s.logger, c.id, remote)
	s.conns[c.id] = c
	s.active.Add(1)
	connectionsTotal.Inc()
	connectionsActive.Inc()
	c.logger.Debug("client connected", "clients", len(s.conns))

	s.wg.Add(1)
	go s.readLoop(c)
}

// readLoop reads one request chunk at a time and hands it to the reactor.
func (s *Server) readLoop(c *conn) {
	defer s.wg.Done()
	buf := make([]byte, protocol.MaxRequestSize)
	for {
		n, err := c.nc.Read(buf)
		ev := readEvent{c: c, data: append([]byte(nil), buf[:n]...), err: err}
		select {
		case s.readCh <- ev:
		case <-s.done:
			return
		}

		select {
		case again := <-c.resume:
			if !again {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Server) service(ctx context.Context, ev readEvent) {
	c := ev.c
	if _, ok := s.conns[c.id]; !ok {
		return
	}

	if ev.err != nil || len(ev.data) == 0 {
		s.drop(c, "disconnected")
		return
	}

	if protocol.IsExit(ev.data) {
		s.drop(c, "exit")
		return
	}

	var reply *protocol.Reply
	req := &log.Request{
		Command:    protocol.MethodName(ev.data),
		ConnID:     c.id,
		RemoteAddr: c.remote,
		Size:       len(ev.data),
	}
	_ = s.requests.Handler(req, func() error {
		reply = s.dispatcher.Dispatch(ctx, ev.data)
		if reply.Error != nil {
			return reply.Error
		}
		return nil
	})

	if err := s.write(c, reply.Encode()); err != nil {
		c.logger.Debug("reply write failed", "error", err)
		s.drop(c, "write failed")
		return
	}
	c.resume <- true
}

func (s *Server) write(c *conn, data []byte) error {
	if s.cfg.WriteTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := c.nc.Write(data)
	return err
}

func (s *Server) drop(c *conn, reason string) {
	delete(s.conns, c.id)
	s.active.Add(-1)
	connectionsActive.Dec()
	c.nc.Close()
	c.resume <- false
	c.logger.Debug("client disconnected", "reason", reason, "clients", len(s.conns))
}

func (s *Server) teardown() {
	close(s.done)
	s.ln.Close()
	for _, c := range s.conns {
		c.nc.Close()
		delete(s.conns, c.id)
		s.active.Add(-1)
		connectionsActive.Dec()
	}
	s.wg.Wait()
	s.logger.Info("server stopped")
}

func remoteAddr(nc net.Conn) string {
	if addr := nc.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}
