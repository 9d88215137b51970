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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/commond/internal/config"
	"github.com/tombee/commond/internal/log"
)

// RunOptions configures daemon execution. Non-zero fields override the
// loaded configuration.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	ConfigPath      string
	Network         string
	SocketPath      string
	Host            string
	Port            int
	CoordinationDir string
	AllowRemote     bool
	PIDFile         string
	MetricsAddr     string

	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

// Run starts the daemon and blocks until SIGINT or SIGTERM, then shuts it
// down. A clean signal shutdown returns nil.
func Run(opts RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, opts.LogOutput)
	slog.SetDefault(logger)

	if cfg.Daemon.Listen.AllowRemote {
		logger.Warn("allow_remote is enabled; any host that can reach the port can read and write registers")
	}

	d, err := New(cfg, Options{Version: opts.Version, Commit: opts.Commit, BuildDate: opts.BuildDate}, logger)
	if err != nil {
		logger.Error("failed to create daemon", log.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startErr := d.Start(ctx)
	if startErr != nil {
		logger.Error("daemon error", log.Error(startErr))
	} else if ctx.Err() != nil {
		logger.Info("received shutdown signal")
	}

	shutdownErr := d.Shutdown(context.Background())
	return errors.Join(startErr, shutdownErr)
}

func applyOverrides(cfg *config.Config, opts RunOptions) {
	listen := &cfg.Daemon.Listen
	if opts.Network != "" {
		listen.Network = opts.Network
	}
	if opts.SocketPath != "" {
		listen.SocketPath = opts.SocketPath
	}
	if opts.Host != "" {
		listen.Host = opts.Host
	}
	if opts.Port != 0 {
		listen.Port = opts.Port
	}
	if opts.AllowRemote {
		listen.AllowRemote = true
	}
	if opts.CoordinationDir != "" {
		cfg.Daemon.CoordinationDir = opts.CoordinationDir
	}
	if opts.PIDFile != "" {
		cfg.Daemon.PIDFile = opts.PIDFile
	}
	if opts.MetricsAddr != "" {
		cfg.Daemon.Metrics.Addr = opts.MetricsAddr
	}
}

// newLogger builds the logger from the merged config. COMMOND_DEBUG and
// COMMOND_LOG_LEVEL still take precedence, as they do for every binary.
func newLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	logCfg := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		AddSource: cfg.Log.AddSource,
		Output:    out,
	}
	if os.Getenv("COMMOND_DEBUG") != "" || os.Getenv("COMMOND_LOG_LEVEL") != "" {
		env := log.FromEnv()
		logCfg.Level = env.Level
		logCfg.AddSource = logCfg.AddSource || env.AddSource
	}
	return log.New(logCfg)
}
