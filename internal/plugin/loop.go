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
	"log/slog"
	"time"

	"github.com/tombee/commond/internal/log"
)

// CycleFunc is the per-cycle work of a Loop. Returning an error is logged
// and does not end the loop.
type CycleFunc func(ctx context.Context, m *Management) error

// Loop runs a Management cycle at a fixed frequency in its own goroutine.
type Loop struct {
	mgmt     *Management
	interval time.Duration
	fn       CycleFunc
	logger   *slog.Logger

	// CycleTimeout bounds BeginCycle and fn together. Zero uses the interval.
	CycleTimeout time.Duration
}

// NewLoop runs fn frequency times per second. A non-positive frequency
// runs one cycle per second.
func NewLoop(m *Management, frequency float64, fn CycleFunc, logger *slog.Logger) *Loop {
	interval := time.Second
	if frequency > 0 {
		interval = time.Duration(float64(time.Second) / frequency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		mgmt:     m,
		interval: interval,
		fn:       fn,
		logger:   log.WithComponent(logger, "loop"),
	}
}

// Interval returns the time between cycle starts.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Run cycles until ctx is canceled or the engine is stopped. It returns
// nil in both cases.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		stopped, err := l.cycle(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("cycle failed", log.Error(err))
		}
		if stopped {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Loop) cycle(ctx context.Context) (bool, error) {
	timeout := l.CycleTimeout
	if timeout == 0 {
		timeout = l.interval
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state, err := l.mgmt.IsEngineStopped(cctx)
	if err != nil {
		return false, err
	}
	if state != nil {
		l.logger.Info("engine stopped, ending loop",
			slog.Int("code", state.Code),
			slog.String("reason", state.Reason))
		return true, nil
	}

	if err := l.mgmt.BeginCycle(cctx); err != nil {
		return false, err
	}
	if l.fn == nil {
		return false, nil
	}
	return false, l.fn(cctx, l.mgmt)
}
