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

// Package dispatch turns request lines into registry operations.
//
// The command set is fixed at construction: every name maps to a handler
// method on Dispatcher, and nothing else is reachable from the wire.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
	"github.com/tombee/commond/internal/registry"
)

// Handler runs one command against the registry.
type Handler func(ctx context.Context, args []json.RawMessage) (*protocol.Reply, error)

// AlertObserver is told about alert register changes after they are stored.
// Observer failures are logged and never fail the request.
type AlertObserver interface {
	// AlertRaised reports a stored alert. replaced is the record it
	// overwrote, or nil for a fresh alert.
	AlertRaised(ctx context.Context, alert registry.Alert, replaced *registry.Alert) error
	AlertsRecovered(ctx context.Context, alertID string, removed []registry.Alert) error
}

// Dispatcher routes requests to handlers.
type Dispatcher struct {
	store     registry.Store
	handlers  map[string]Handler
	observers []AlertObserver
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver adds an alert observer.
func WithObserver(o AlertObserver) Option {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, o)
	}
}

// New creates a dispatcher over store.
func New(store registry.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.handlers = map[string]Handler{
		protocol.MethodPutValue:     d.putValue,
		protocol.MethodHasValue:     d.hasValue,
		protocol.MethodGetValue:     d.getValue,
		protocol.MethodStop:         d.stop,
		protocol.MethodStopped:      d.stopped,
		protocol.MethodPutCommand:   d.putCommand,
		protocol.MethodHasCommand:   d.hasCommand,
		protocol.MethodGetCommand:   d.getCommand,
		protocol.MethodClearCommand: d.clearCommand,
		protocol.MethodAlert:        d.triggerAlert,
		protocol.MethodAlerts:       d.alerts,
		protocol.MethodRecoverAlert: d.recoverAlert,
		protocol.MethodLiveAlertIDs: d.liveAlertIDs,
	}
	return d
}

// HasMethod reports whether method is a known command.
func (d *Dispatcher) HasMethod(method string) bool {
	_, ok := d.handlers[method]
	return ok
}

// Dispatch handles one trimmed request line and returns the reply. It never
// panics on client input and never returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, line []byte) *protocol.Reply {
	start := time.Now()
	method := protocol.MethodName(line)

	reply := d.dispatch(ctx, method, line)

	label := method
	if !d.HasMethod(method) {
		label = "unknown"
	}
	recordRequest(label, reply.Status, time.Since(start))
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, method string, line []byte) *protocol.Reply {
	if method == "" {
		return protocol.Errorf(protocol.CodeMalformedRequest, "request has no command name")
	}

	handler, ok := d.handlers[method]
	if !ok {
		return protocol.Errorf(protocol.CodeUnknownCommand, "unknown command %q", method)
	}

	req, err := protocol.ParseRequest(line)
	if err != nil {
		return protocol.Errorf(protocol.CodeBadArguments, "%v", err)
	}

	reply, err := handler(ctx, req.Args)
	if err != nil {
		if errors.Is(err, ErrBadArguments) {
			return protocol.Errorf(protocol.CodeBadArguments, "%s: %v", method, err)
		}
		d.logger.Error("registry operation failed", log.CommandKey, method, log.Error(err))
		return protocol.Errorf(protocol.CodeBackendError, "%s: %v", method, err)
	}
	return reply
}
