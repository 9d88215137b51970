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
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/tombee/commond/internal/feed"
	"github.com/tombee/commond/internal/lifecycle"
	internallog "github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/registry"
	"github.com/tombee/commond/internal/server"
)

// resources lists what a daemon holds. Nil fields are skipped.
type resources struct {
	server     *server.Server
	listener   net.Listener
	socketPath string
	metrics    *http.Server
	dir        *feed.Dir
	nats       *feed.NATSFeed
	store      registry.Store
	pidFile    *lifecycle.PIDFileManager
}

// shutdown releases res in dependency order: stop accepting, close
// clients, remove the socket and running marker, then close feeds and the
// store. Every step runs even if an earlier one fails.
func shutdown(ctx context.Context, logger *slog.Logger, timeout time.Duration, res resources) error {
	var errs []error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		logger.Error("shutdown step failed", slog.String("step", step), internallog.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
	}

	if res.server != nil {
		record("server", res.server.Close())
	}
	if res.listener != nil {
		if err := res.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			record("listener", err)
		}
	}

	if res.socketPath != "" {
		if err := os.Remove(res.socketPath); err != nil && !os.IsNotExist(err) {
			record("socket file", err)
		}
	}

	if res.dir != nil {
		record("running marker", res.dir.ClearRunning())
	}

	if res.metrics != nil {
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		record("metrics server", res.metrics.Shutdown(shutdownCtx))
		cancel()
	}

	if res.nats != nil {
		record("nats feed", res.nats.Close())
	}

	if res.store != nil {
		record("registry store", res.store.Close())
	}

	if res.pidFile != nil {
		record("pid file", res.pidFile.Remove())
	}

	logger.Info("commond stopped")
	return errors.Join(errs...)
}
