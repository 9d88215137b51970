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

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tombee/commond/internal/registry"
)

// Event kinds.
const (
	EventRaised    = "raised"
	EventRecovered = "recovered"
)

// Event is one alert change on the NATS feed.
type Event struct {
	Event string         `json:"event"`
	Alert registry.Alert `json:"alert"`
	Time  time.Time      `json:"time"`
}

// Publisher is the part of *nats.Conn the feed uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSFeed publishes alert events to a NATS subject. Publishing is
// fire-and-forget; the client library buffers while reconnecting.
type NATSFeed struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// ConnectNATS dials url and returns a feed publishing on subject.
func ConnectNATS(url, subject string, logger *slog.Logger) (*NATSFeed, error) {
	conn, err := nats.Connect(url,
		nats.Name("commond"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	f := NewNATSFeed(conn, subject, logger)
	f.conn = conn
	logger.Info("NATS alert feed connected", "url", url, "subject", subject)
	return f, nil
}

// NewNATSFeed wraps an existing publisher.
func NewNATSFeed(pub Publisher, subject string, logger *slog.Logger) *NATSFeed {
	return &NATSFeed{
		pub:     pub,
		subject: subject,
		logger:  logger,
		now:     time.Now,
	}
}

// AlertRaised publishes a raised event. A replaced record needs no event of
// its own since subscribers key on the composite id.
func (f *NATSFeed) AlertRaised(ctx context.Context, alert registry.Alert, replaced *registry.Alert) error {
	return f.publish(EventRaised, alert)
}

// AlertsRecovered publishes one recovered event per removed alert.
func (f *NATSFeed) AlertsRecovered(ctx context.Context, alertID string, removed []registry.Alert) error {
	for _, a := range removed {
		if err := f.publish(EventRecovered, a); err != nil {
			return err
		}
	}
	return nil
}

func (f *NATSFeed) publish(kind string, alert registry.Alert) error {
	data, err := json.Marshal(Event{Event: kind, Alert: alert, Time: f.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := f.pub.Publish(f.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	f.logger.Debug("published alert event", "event", kind, "alert_id", alert.ID, "owner", alert.Owner)
	return nil
}

// Close drains and closes the NATS connection if the feed owns one.
func (f *NATSFeed) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Drain()
}
