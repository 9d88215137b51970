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

// Package sqlite provides a registry that persists to a SQLite file, so the
// registers survive a daemon restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/commond/internal/registry"
)

// Compile-time interface assertions.
var (
	_ registry.ValueStore   = (*Backend)(nil)
	_ registry.CommandStore = (*Backend)(nil)
	_ registry.AlertStore   = (*Backend)(nil)
	_ registry.ControlStore = (*Backend)(nil)
	_ registry.Store        = (*Backend)(nil)
)

// Backend is a SQLite registry.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode.
	WAL bool
}

// New opens (or creates) the database at cfg.Path and migrates it.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS value_registers (
			domain TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (domain, key)
		)`,
		`CREATE TABLE IF NOT EXISTS command_registers (
			name TEXT PRIMARY KEY,
			info TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alert_registers (
			composite_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			alert_id TEXT NOT NULL,
			code INTEGER NOT NULL,
			message TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			affected_plugin TEXT NOT NULL DEFAULT '',
			level INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_registers_alert_id ON alert_registers(alert_id)`,
		`CREATE TABLE IF NOT EXISTS control_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			code INTEGER NOT NULL,
			reason TEXT NOT NULL
		)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// PutValue stores value under domain/key.
func (b *Backend) PutValue(ctx context.Context, domain, key string, value json.RawMessage) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO value_registers (domain, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(domain, key) DO UPDATE SET value = excluded.value`,
		domain, key, string(value))
	if err != nil {
		return fmt.Errorf("failed to put value: %w", err)
	}
	return nil
}

// HasValue reports whether key exists in domain.
func (b *Backend) HasValue(ctx context.Context, domain, key string) (bool, error) {
	return b.exists(ctx, `SELECT 1 FROM value_registers WHERE domain = ? AND key = ?`, domain, key)
}

// HasDomain reports whether domain holds at least one key.
func (b *Backend) HasDomain(ctx context.Context, domain string) (bool, error) {
	return b.exists(ctx, `SELECT 1 FROM value_registers WHERE domain = ? LIMIT 1`, domain)
}

// GetValue returns the value under domain/key.
func (b *Backend) GetValue(ctx context.Context, domain, key string) (json.RawMessage, bool, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM value_registers WHERE domain = ? AND key = ?`, domain, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get value: %w", err)
	}
	return json.RawMessage(value), true, nil
}

// GetDomain returns every key/value under domain.
func (b *Backend) GetDomain(ctx context.Context, domain string) (map[string]json.RawMessage, bool, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key, value FROM value_registers WHERE domain = ?`, domain)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get domain: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, false, fmt.Errorf("failed to scan value: %w", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate values: %w", err)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// PutCommand stores info under name.
func (b *Backend) PutCommand(ctx context.Context, name string, info json.RawMessage) error {
	if info == nil {
		info = registry.FalseInfo
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO command_registers (name, info) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET info = excluded.info`,
		name, string(info))
	if err != nil {
		return fmt.Errorf("failed to put command: %w", err)
	}
	return nil
}

// HasCommand reports whether name is pending.
func (b *Backend) HasCommand(ctx context.Context, name string) (bool, error) {
	return b.exists(ctx, `SELECT 1 FROM command_registers WHERE name = ?`, name)
}

// GetCommand returns the info under name.
func (b *Backend) GetCommand(ctx context.Context, name string) (json.RawMessage, bool, error) {
	var info string
	err := b.db.QueryRowContext(ctx, `SELECT info FROM command_registers WHERE name = ?`, name).Scan(&info)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get command: %w", err)
	}
	return json.RawMessage(info), true, nil
}

// ClearCommand removes name.
func (b *Backend) ClearCommand(ctx context.Context, name string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM command_registers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to clear command: %w", err)
	}
	return nil
}

// TriggerAlert stores alert under its composite id and returns the record
// it replaced.
func (b *Backend) TriggerAlert(ctx context.Context, alert registry.Alert) (*registry.Alert, error) {
	var level sql.NullInt64
	if alert.Level != nil {
		level = sql.NullInt64{Int64: int64(*alert.Level), Valid: true}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, err := b.queryAlerts(ctx, tx,
		`SELECT `+alertColumns+` FROM alert_registers WHERE composite_id = ?`, alert.CompositeID())
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO alert_registers (composite_id, owner, alert_id, code, message, timestamp, affected_plugin, level)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(composite_id) DO UPDATE SET
			code = excluded.code,
			message = excluded.message,
			timestamp = excluded.timestamp,
			affected_plugin = excluded.affected_plugin,
			level = excluded.level`,
		alert.CompositeID(), alert.Owner, alert.ID, alert.Code, alert.Message,
		alert.Timestamp, alert.AffectedPlugin, level)
	if err != nil {
		return nil, fmt.Errorf("failed to trigger alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit alert: %w", err)
	}
	if len(prev) == 0 {
		return nil, nil
	}
	return &prev[0], nil
}

const alertColumns = `owner, alert_id, code, message, timestamp, affected_plugin, level`

// Alerts returns every live alert ordered by composite id.
func (b *Backend) Alerts(ctx context.Context) ([]registry.Alert, error) {
	return b.queryAlerts(ctx, b.db, `SELECT `+alertColumns+` FROM alert_registers ORDER BY composite_id`)
}

// RecoverAlert removes every alert indexed under alertID in one transaction.
func (b *Backend) RecoverAlert(ctx context.Context, alertID string) ([]registry.Alert, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed, err := b.queryAlerts(ctx, tx,
		`SELECT `+alertColumns+` FROM alert_registers WHERE alert_id = ? ORDER BY composite_id`, alertID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_registers WHERE alert_id = ?`, alertID); err != nil {
		return nil, fmt.Errorf("failed to recover alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recovery: %w", err)
	}
	return removed, nil
}

// LiveAlertIDs returns the sorted composite ids of live alerts.
func (b *Backend) LiveAlertIDs(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT composite_id FROM alert_registers ORDER BY composite_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan alert id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stop records the stop request.
func (b *Backend) Stop(ctx context.Context, state registry.StopState) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO control_state (id, code, reason) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET code = excluded.code, reason = excluded.reason`,
		state.Code, state.Reason)
	if err != nil {
		return fmt.Errorf("failed to record stop: %w", err)
	}
	return nil
}

// Stopped returns the stop record or nil.
func (b *Backend) Stopped(ctx context.Context) (*registry.StopState, error) {
	var s registry.StopState
	err := b.db.QueryRowContext(ctx, `SELECT code, reason FROM control_state WHERE id = 1`).Scan(&s.Code, &s.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stop state: %w", err)
	}
	return &s, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (b *Backend) queryAlerts(ctx context.Context, q querier, query string, args ...any) ([]registry.Alert, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []registry.Alert{}
	for rows.Next() {
		var (
			a     registry.Alert
			level sql.NullInt64
		)
		if err := rows.Scan(&a.Owner, &a.ID, &a.Code, &a.Message, &a.Timestamp, &a.AffectedPlugin, &level); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if level.Valid {
			l := int(level.Int64)
			a.Level = &l
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}

func (b *Backend) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query registry: %w", err)
	}
	return true, nil
}
