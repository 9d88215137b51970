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

// Package daemon assembles commond: registry store, dispatcher, alert
// feeds, listener and the request reactor.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/commond/internal/config"
	"github.com/tombee/commond/internal/dispatch"
	"github.com/tombee/commond/internal/feed"
	"github.com/tombee/commond/internal/lifecycle"
	"github.com/tombee/commond/internal/listener"
	internallog "github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/registry"
	"github.com/tombee/commond/internal/registry/memory"
	"github.com/tombee/commond/internal/registry/sqlite"
	"github.com/tombee/commond/internal/server"
)

// Options carries build information.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is one commond instance.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store      registry.Store
	dispatcher *dispatch.Dispatcher
	dir        *feed.Dir
	nats       *feed.NATSFeed

	mu       sync.Mutex
	started  bool
	pidFile  *lifecycle.PIDFileManager
	ln       net.Listener
	srv      *server.Server
	metrics  *http.Server
	ready    chan struct{}
	stopOnce sync.Once
}

// New opens the registry backend and alert feeds. Nothing listens until
// Start.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := openStore(cfg.Daemon.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry backend: %w", err)
	}

	d := &Daemon{
		cfg:    cfg,
		opts:   opts,
		logger: internallog.WithComponent(logger, "daemon"),
		store:  store,
		ready:  make(chan struct{}),
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(internallog.WithComponent(logger, "dispatch"))}

	if cfg.Daemon.CoordinationDir != "" {
		dir, err := feed.NewDir(cfg.Daemon.CoordinationDir)
		if err != nil {
			store.Close()
			return nil, err
		}
		d.dir = dir
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(dir))
	}

	if cfg.Daemon.Feed.NATSURL != "" {
		nf, err := feed.ConnectNATS(cfg.Daemon.Feed.NATSURL, cfg.Daemon.Feed.NATSSubject, internallog.WithComponent(logger, "nats-feed"))
		if err != nil {
			store.Close()
			return nil, err
		}
		d.nats = nf
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(nf))
	}

	d.dispatcher = dispatch.New(store, dispatchOpts...)
	return d, nil
}

func openStore(cfg config.BackendConfig) (registry.Store, error) {
	switch cfg.Type {
	case "", config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return sqlite.New(sqlite.Config{Path: cfg.SQLite.Path, WAL: cfg.SQLite.WAL})
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// Ready is closed once the daemon accepts connections.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound address. It is nil before Ready.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return nil
	}
	return d.ln.Addr()
}

// Start binds the listener and serves until ctx is cancelled. Bind
// failures are returned as *errors.ListenError.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("daemon already started")
	}
	d.started = true

	if path := d.cfg.Daemon.PIDFile; path != "" {
		pf := lifecycle.NewPIDFileManager(path)
		if err := pf.Create(os.Getpid()); err != nil {
			d.mu.Unlock()
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		d.pidFile = pf
	}

	ln, err := listener.New(d.cfg.Daemon.Listen)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.ln = ln

	if d.dir != nil {
		if err := d.dir.MarkRunning(); err != nil {
			d.logger.Warn("failed to create running marker", internallog.Error(err))
		}
	}

	metricsErr := make(chan error, 1)
	if addr := d.cfg.Daemon.Metrics.Addr; addr != "" {
		d.metrics = newMetricsServer(addr)
		go func() {
			if err := d.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	d.srv = server.New(ln, d.dispatcher, server.Config{
		MaxClients:   d.cfg.Daemon.MaxClients,
		WriteTimeout: d.cfg.Daemon.WriteTimeout,
		Logger:       d.logger,
	})
	srv := d.srv
	d.mu.Unlock()

	d.logger.Info("commond started",
		slog.String("version", d.opts.Version),
		slog.String("network", d.cfg.Daemon.Listen.Network),
		slog.String("address", d.cfg.Daemon.Listen.Address()),
		slog.String("backend", d.cfg.Daemon.Backend.Type),
		slog.String("coordination_dir", d.cfg.Daemon.CoordinationDir))
	close(d.ready)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(serveCtx) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, server.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-metricsErr:
		cancel()
		<-serveErr
		return err
	}
}

// Shutdown releases everything Start and New acquired. It is safe to call
// more than once and without a prior Start.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		d.mu.Lock()
		res := resources{
			server:     d.srv,
			listener:   d.ln,
			socketPath: d.socketPath(),
			metrics:    d.metrics,
			dir:        d.dir,
			nats:       d.nats,
			store:      d.store,
			pidFile:    d.pidFile,
		}
		d.mu.Unlock()

		err = shutdown(ctx, d.logger, d.cfg.Daemon.ShutdownTimeout, res)
	})
	return err
}

// socketPath is the file to unlink at shutdown, only once this daemon has
// bound it.
func (d *Daemon) socketPath() string {
	if d.ln == nil || d.cfg.Daemon.Listen.Network == config.NetworkInet {
		return ""
	}
	return d.cfg.Daemon.Listen.SocketPath
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
