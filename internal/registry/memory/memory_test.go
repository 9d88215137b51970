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

package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/commond/internal/registry"
	"github.com/tombee/commond/internal/registry/registrytest"
)

func TestBackend(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) registry.Store { return New() })
}

func TestBackend_ValuesAreCopied(t *testing.T) {
	b := New()
	ctx := context.Background()

	raw := json.RawMessage(`"abc"`)
	require.NoError(t, b.PutValue(ctx, "d", "k", raw))
	raw[1] = 'x'

	got, _, err := b.GetValue(ctx, "d", "k")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(got))
}
