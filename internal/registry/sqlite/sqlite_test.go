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

package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/registry"
	"github.com/tombee/commond/internal/registry/registrytest"
)

// createTestBackend creates a SQLite backend in a temporary directory.
func createTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "registry.db")
	be, err := New(Config{Path: dbPath, WAL: true})
	require.NoError(t, err, "failed to create backend")

	return be, dbPath
}

func TestBackend(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) registry.Store {
		be, _ := createTestBackend(t)
		return be
	})
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	be, dbPath := createTestBackend(t)
	ctx := context.Background()

	require.NoError(t, be.PutValue(ctx, "plc", "temp", json.RawMessage(`21`)))
	require.NoError(t, be.PutCommand(ctx, "restart", nil))
	_, err := be.TriggerAlert(ctx, registry.Alert{Owner: "p1", ID: "A1", Code: 5, Message: "hot"})
	require.NoError(t, err)
	require.NoError(t, be.Stop(ctx, registry.StopState{Code: 1, Reason: "done"}))
	require.NoError(t, be.Close())

	reopened, err := New(Config{Path: dbPath})
	require.NoError(t, err)
	defer reopened.Close()

	v, found, err := reopened.GetValue(ctx, "plc", "temp")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `21`, string(v))

	ok, err := reopened.HasCommand(ctx, "restart")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := reopened.LiveAlertIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1::A1"}, ids)

	state, err := reopened.Stopped(ctx)
	require.NoError(t, err)
	assert.Equal(t, &registry.StopState{Code: 1, Reason: "done"}, state)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "missing", "dir", "registry.db")})
	assert.Error(t, err)
}
