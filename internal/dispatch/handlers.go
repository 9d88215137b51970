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

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tombee/commond/internal/log"
	"github.com/tombee/commond/internal/protocol"
	"github.com/tombee/commond/internal/registry"
)

// putv [domain, key, value]
func (d *Dispatcher) putValue(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	args := argList(raw)
	if err := args.atMost(3); err != nil {
		return nil, err
	}
	domain, err := args.stringAt(0, "domain")
	if err != nil {
		return nil, err
	}
	key, err := args.stringAt(1, "key")
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, fmt.Errorf("%w: missing value (argument 2)", ErrBadArguments)
	}

	if err := d.store.PutValue(ctx, domain, key, args[2]); err != nil {
		return nil, err
	}
	return protocol.OKTrue(), nil
}

// hasv [domain, key?]
func (d *Dispatcher) hasValue(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	args := argList(raw)
	if err := args.atMost(2); err != nil {
		return nil, err
	}
	domain, err := args.stringAt(0, "domain")
	if err != nil {
		return nil, err
	}
	key, hasKey, err := args.optStringAt(1, "key")
	if err != nil {
		return nil, err
	}

	var ok bool
	if hasKey {
		ok, err = d.store.HasValue(ctx, domain, key)
	} else {
		ok, err = d.store.HasDomain(ctx, domain)
	}
	if err != nil {
		return nil, err
	}
	return protocol.NewOK(ok)
}

// getv [domain, key?]
func (d *Dispatcher) getValue(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	args := argList(raw)
	if err := args.atMost(2); err != nil {
		return nil, err
	}
	domain, err := args.stringAt(0, "domain")
	if err != nil {
		return nil, err
	}
	key, hasKey, err := args.optStringAt(1, "key")
	if err != nil {
		return nil, err
	}

	if hasKey {
		value, found, err := d.store.GetValue(ctx, domain, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return protocol.Absent(), nil
		}
		return protocol.OK(value), nil
	}

	values, found, err := d.store.GetDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !found {
		return protocol.Absent(), nil
	}
	return protocol.NewOK(values)
}

// stop [code?, reason?]
func (d *Dispatcher) stop(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	args := argList(raw)
	if err := args.atMost(2); err != nil {
		return nil, err
	}
	code, err := args.optIntAt(0, "code")
	if err != nil {
		return nil, err
	}
	reason, _, err := args.optStringAt(1, "reason")
	if err != nil {
		return nil, err
	}

	state := registry.StopState{Reason: reason}
	if code != nil {
		state.Code = *code
	}
	if err := d.store.Stop(ctx, state); err != nil {
		return nil, err
	}
	d.logger.Warn("engine stop requested", "code", state.Code, "reason", state.Reason)
	return protocol.OKTrue(), nil
}

// stopped []
func (d *Dispatcher) stopped(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	if err := argList(raw).atMost(0); err != nil {
		return nil, err
	}
	state, err := d.store.Stopped(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return protocol.Absent(), nil
	}
	return protocol.NewOK(state)
}

// putc [name, info?]
func (d *Dispatcher) putCommand(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	args := argList(raw)
	if err := args.atMost(2); err != nil {
		return nil, err
	}
	name, err := args.stringAt(0, "name")
	if err != nil {
		return nil, err
	}

	var info json.RawMessage
	if len(args) > 1 {
		info = args[1]
	}
	if err := d.store.PutCommand(ctx, name, info); err != nil {
		return nil, err
	}
	return protocol.OKTrue(), nil
}

// hasc [name]
func (d *Dispatcher) hasCommand(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	name, err := singleName(raw)
	if err != nil {
		return nil, err
	}
	ok, err := d.store.HasCommand(ctx, name)
	if err != nil {
		return nil, err
	}
	return protocol.NewOK(ok)
}

// getc [name]
func (d *Dispatcher) getCommand(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	name, err := singleName(raw)
	if err != nil {
		return nil, err
	}
	info, found, err := d.store.GetCommand(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return protocol.Absent(), nil
	}
	return protocol.OK(info), nil
}

// clearc [name]
func (d *Dispatcher) clearCommand(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	name, err := singleName(raw)
	if err != nil {
		return nil, err
	}
	if err := d.store.ClearCommand(ctx, name); err != nil {
		return nil, err
	}
	return protocol.OKTrue(), nil
}

// alrt [owner, alertId, code, message, timestamp, plugin?, level?]
func (d *Dispatcher) triggerAlert(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	args := argList(raw)
	if err := args.atMost(7); err != nil {
		return nil, err
	}

	var alert registry.Alert
	var err error
	if alert.Owner, err = args.idAt(0, "owner"); err != nil {
		return nil, err
	}
	if alert.ID, err = args.idAt(1, "alertId"); err != nil {
		return nil, err
	}
	if err = args.decode(2, "code", &alert.Code); err != nil {
		return nil, err
	}
	if alert.Message, _, err = args.optStringAt(3, "message"); err != nil {
		return nil, err
	}
	if err = args.decode(4, "timestamp", &alert.Timestamp); err != nil {
		return nil, err
	}
	if alert.AffectedPlugin, _, err = args.optStringAt(5, "plugin"); err != nil {
		return nil, err
	}
	if alert.Level, err = args.optIntAt(6, "level"); err != nil {
		return nil, err
	}

	replaced, err := d.store.TriggerAlert(ctx, alert)
	if err != nil {
		return nil, err
	}
	d.logger.Info("alert raised",
		log.OwnerKey, alert.Owner,
		log.AlertIDKey, alert.ID,
		"code", alert.Code,
	)

	for _, o := range d.observers {
		if err := o.AlertRaised(ctx, alert, replaced); err != nil {
			d.logger.Warn("alert observer failed", log.AlertIDKey, alert.ID, log.Error(err))
		}
	}
	d.updateLiveAlerts(ctx)
	return protocol.OKTrue(), nil
}

// alrtget []
func (d *Dispatcher) alerts(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	if err := argList(raw).atMost(0); err != nil {
		return nil, err
	}
	alerts, err := d.store.Alerts(ctx)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []registry.Alert{}
	}
	return protocol.NewOK(alerts)
}

// alrtq [alertId]
func (d *Dispatcher) recoverAlert(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	alertID, err := singleName(raw)
	if err != nil {
		return nil, err
	}
	removed, err := d.store.RecoverAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	d.logger.Info("alert recovered", log.AlertIDKey, alertID, "removed", len(removed))

	if len(removed) > 0 {
		for _, o := range d.observers {
			if err := o.AlertsRecovered(ctx, alertID, removed); err != nil {
				d.logger.Warn("alert observer failed", log.AlertIDKey, alertID, log.Error(err))
			}
		}
	}
	d.updateLiveAlerts(ctx)
	return protocol.OKTrue(), nil
}

// ialrtq []
func (d *Dispatcher) liveAlertIDs(ctx context.Context, raw []json.RawMessage) (*protocol.Reply, error) {
	if err := argList(raw).atMost(0); err != nil {
		return nil, err
	}
	ids, err := d.store.LiveAlertIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return protocol.NewOK(ids)
}

func singleName(raw []json.RawMessage) (string, error) {
	args := argList(raw)
	if err := args.atMost(1); err != nil {
		return "", err
	}
	return args.stringAt(0, "name")
}

func (d *Dispatcher) updateLiveAlerts(ctx context.Context) {
	ids, err := d.store.LiveAlertIDs(ctx)
	if err != nil {
		return
	}
	liveAlerts.Set(float64(len(ids)))
}
