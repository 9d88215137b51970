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
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/config"
	"github.com/tombee/commond/internal/lifecycle"
	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
)

// ErrNotStarted is returned when the daemon has not been set up.
var ErrNotStarted = errors.New("commond server not started")

// Engine is the host engine the server plugin can stop.
type Engine interface {
	Stop(code int, reason string)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(code int, reason string)

// Stop calls f.
func (f EngineFunc) Stop(code int, reason string) { f(code, reason) }

// ServerConfig describes the daemon a ServerPlugin owns.
type ServerConfig struct {
	// Binary is the commond executable.
	Binary string

	// Args are passed before the positional launch arguments.
	Args []string

	// Env replaces the daemon's environment when set.
	Env []string

	// Network is "unix" or "inet".
	Network string

	// Address is the socket path, or the host for inet.
	Address string

	// Port is the TCP port for inet.
	Port int

	// CoordinationDir is passed to the daemon when set.
	CoordinationDir string

	// LogPath receives the daemon's output. Empty discards it.
	LogPath string

	// StartTimeout bounds the wait for the socket. Default: 100ms.
	StartTimeout time.Duration

	// StopTimeout bounds the wait after SIGTERM. Default: 5s.
	StopTimeout time.Duration
}

// LaunchArgs returns the positional arguments commond expects.
func (c ServerConfig) LaunchArgs() []string {
	args := append([]string(nil), c.Args...)
	if c.Network == config.NetworkInet {
		args = append(args, config.NetworkInet, c.Address, strconv.Itoa(c.Port))
	} else {
		args = append(args, config.NetworkUnix, c.Address)
	}
	if c.CoordinationDir != "" {
		args = append(args, c.CoordinationDir)
	}
	return args
}

// Transport returns a client transport for the configured daemon.
func (c ServerConfig) Transport() *client.Transport {
	if c.Network == config.NetworkInet {
		return client.NewTCPTransport(config.ListenConfig{
			Network: config.NetworkInet,
			Host:    c.Address,
			Port:    c.Port,
		}.Address())
	}
	return client.NewUnixTransport(c.Address)
}

// ServerPlugin runs commond as a child of the host engine and forwards
// stop requests from the registers to the engine.
type ServerPlugin struct {
	cfg    ServerConfig
	engine Engine
	logger *slog.Logger

	mu    sync.Mutex
	child *lifecycle.Child
	mgmt  *Management
}

// NewServerPlugin creates a plugin for cfg. Nothing starts until Setup.
func NewServerPlugin(cfg ServerConfig, engine Engine, logger *slog.Logger) *ServerPlugin {
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 100 * time.Millisecond
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerPlugin{
		cfg:    cfg,
		engine: engine,
		logger: log.WithComponent(logger, "server-plugin"),
	}
}

// Setup spawns the daemon and waits for its socket. For inet daemons it
// waits until a connection succeeds.
func (p *ServerPlugin) Setup(ctx context.Context, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.child != nil {
		return nil
	}

	spawner := lifecycle.NewSpawner()
	if p.cfg.Env != nil {
		spawner = spawner.WithEnv(p.cfg.Env)
	}
	child, err := spawner.Start(p.cfg.Binary, p.cfg.LaunchArgs(), p.cfg.LogPath)
	if err != nil {
		return err
	}

	if err := p.waitReady(ctx, child); err != nil {
		child.Stop(p.cfg.StopTimeout, true)
		return err
	}

	c, err := client.New(p.cfg.Transport(), owner, client.WithLogger(p.logger))
	if err != nil {
		child.Stop(p.cfg.StopTimeout, true)
		return err
	}

	p.child = child
	p.mgmt = NewManagement(c, p.logger)
	p.logger.Info("commond started",
		slog.Int("pid", child.PID),
		slog.String("address", p.cfg.Transport().String()))
	return nil
}

func (p *ServerPlugin) waitReady(ctx context.Context, child *lifecycle.Child) error {
	deadline := time.Now().Add(p.cfg.StartTimeout)
	for {
		err := p.probe(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-child.Done():
			return fmt.Errorf("commond exited during startup: %v", child.Err())
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return err
		}
	}
}

// probe checks once for the socket file, or for inet dials and hangs up.
func (p *ServerPlugin) probe(ctx context.Context) error {
	if p.cfg.Network != config.NetworkInet {
		return lifecycle.WaitForSocket(p.cfg.Address, time.Millisecond)
	}
	conn, err := p.cfg.Transport().Dial(ctx)
	if err != nil {
		time.Sleep(time.Millisecond)
		return err
	}
	conn.Write([]byte(protocol.ExitCommand))
	return conn.Close()
}

// Management returns the plugin's own client view, or nil before Setup.
func (p *ServerPlugin) Management() *Management {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mgmt
}

// PID returns the daemon's process id, or 0 before Setup.
func (p *ServerPlugin) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.child == nil {
		return 0
	}
	return p.child.PID
}

// Update runs once per engine cycle. It reports whether a stop was
// forwarded to the engine.
func (p *ServerPlugin) Update(ctx context.Context) (bool, error) {
	m := p.Management()
	if m == nil {
		return false, ErrNotStarted
	}
	state, err := m.IsEngineStopped(ctx)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	p.logger.Info("engine stop requested",
		slog.Int("code", state.Code),
		slog.String("reason", state.Reason))
	if p.engine != nil {
		p.engine.Stop(state.Code, state.Reason)
	}
	return true, nil
}

// TearDown closes the plugin's client and terminates the daemon.
func (p *ServerPlugin) TearDown() error {
	p.mu.Lock()
	child, mgmt := p.child, p.mgmt
	p.child, p.mgmt = nil, nil
	p.mu.Unlock()

	if child == nil {
		return nil
	}
	var errs []error
	if err := mgmt.TearDown(); err != nil {
		errs = append(errs, err)
	}
	if err := child.Stop(p.cfg.StopTimeout, true); err != nil {
		errs = append(errs, err)
	}
	p.logger.Info("commond stopped", slog.Int("pid", child.PID))
	return errors.Join(errs...)
}
