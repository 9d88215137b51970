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
	"encoding/json"
	"time"

	"github.com/tombee/commond/internal/protocol"
	"github.com/tombee/commond/internal/registry"
)

// PutValue stores value under domain/key.
func (c *Client) PutValue(ctx context.Context, domain, key string, value any) error {
	_, err := c.Call(ctx, protocol.MethodPutValue, domain, key, value)
	return err
}

// HasValue reports whether domain/key holds a value.
func (c *Client) HasValue(ctx context.Context, domain, key string) (bool, error) {
	return c.truthy(ctx, protocol.MethodHasValue, domain, key)
}

// HasDomain reports whether domain holds any key.
func (c *Client) HasDomain(ctx context.Context, domain string) (bool, error) {
	return c.truthy(ctx, protocol.MethodHasValue, domain)
}

// GetValue decodes domain/key into out. found is false when the key is
// absent, in which case out is untouched.
func (c *Client) GetValue(ctx context.Context, domain, key string, out any) (bool, error) {
	raw, found, err := c.GetValueRaw(ctx, domain, key)
	if err != nil || !found {
		return found, err
	}
	return true, json.Unmarshal(raw, out)
}

// GetValueRaw returns the stored JSON for domain/key.
func (c *Client) GetValueRaw(ctx context.Context, domain, key string) (json.RawMessage, bool, error) {
	return c.lookup(ctx, protocol.MethodGetValue, domain, key)
}

// GetDomain returns every key of domain.
func (c *Client) GetDomain(ctx context.Context, domain string) (map[string]json.RawMessage, bool, error) {
	raw, found, err := c.lookup(ctx, protocol.MethodGetValue, domain)
	if err != nil || !found {
		return nil, found, err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// Stop records an engine stop request.
func (c *Client) Stop(ctx context.Context, code int, reason string) error {
	_, err := c.Call(ctx, protocol.MethodStop, code, reason)
	return err
}

// Stopped returns the stop record, or nil while the engine may run.
func (c *Client) Stopped(ctx context.Context) (*registry.StopState, error) {
	raw, found, err := c.lookup(ctx, protocol.MethodStopped)
	if err != nil || !found {
		return nil, err
	}
	var state registry.StopState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// PutCommand posts a pending command. A nil info posts it without payload.
func (c *Client) PutCommand(ctx context.Context, name string, info any) error {
	args := []any{name}
	if info != nil {
		args = append(args, info)
	}
	_, err := c.Call(ctx, protocol.MethodPutCommand, args...)
	return err
}

// HasCommand reports whether name is pending.
func (c *Client) HasCommand(ctx context.Context, name string) (bool, error) {
	return c.truthy(ctx, protocol.MethodHasCommand, name)
}

// GetCommand returns the payload of a pending command.
func (c *Client) GetCommand(ctx context.Context, name string) (json.RawMessage, bool, error) {
	return c.lookup(ctx, protocol.MethodGetCommand, name)
}

// ClearCommand removes a pending command.
func (c *Client) ClearCommand(ctx context.Context, name string) error {
	_, err := c.Call(ctx, protocol.MethodClearCommand, name)
	return err
}

// TriggerAlert raises alert under the client's owner. A zero timestamp is
// replaced with the current time.
func (c *Client) TriggerAlert(ctx context.Context, alert registry.Alert) error {
	if alert.Timestamp == 0 {
		alert.Timestamp = time.Now().Unix()
	}
	args := []any{c.owner, alert.ID, alert.Code, alert.Message, alert.Timestamp, alert.AffectedPlugin}
	if alert.Level != nil {
		args = append(args, *alert.Level)
	}
	_, err := c.Call(ctx, protocol.MethodAlert, args...)
	return err
}

// Alerts returns every live alert with owner and id split out.
func (c *Client) Alerts(ctx context.Context) ([]registry.Alert, error) {
	reply, err := c.Call(ctx, protocol.MethodAlerts)
	if err != nil {
		return nil, err
	}
	var alerts []registry.Alert
	if err := reply.Decode(&alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// RecoverAlert clears alertID for every owner.
func (c *Client) RecoverAlert(ctx context.Context, alertID string) error {
	_, err := c.Call(ctx, protocol.MethodRecoverAlert, alertID)
	return err
}

// LiveAlertIDs returns the composite ids of every live alert.
func (c *Client) LiveAlertIDs(ctx context.Context) ([]string, error) {
	reply, err := c.Call(ctx, protocol.MethodLiveAlertIDs)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := reply.Decode(&ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) truthy(ctx context.Context, method string, args ...any) (bool, error) {
	reply, err := c.Call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	return reply.Truthy(), nil
}

func (c *Client) lookup(ctx context.Context, method string, args ...any) (json.RawMessage, bool, error) {
	reply, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, false, err
	}
	if reply.Status == protocol.StatusAbsent {
		return nil, false, nil
	}
	return reply.Value, true, nil
}
