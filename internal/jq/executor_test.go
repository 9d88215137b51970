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

package jq

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Filter(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		input      string
		want       any
		wantErr    string
	}{
		{
			name:  "empty expression returns the document",
			input: `{"speed":12}`,
			want:  map[string]any{"speed": float64(12)},
		},
		{
			name:       "field extraction",
			expression: ".speed",
			input:      `{"speed":12,"mode":"auto"}`,
			want:       float64(12),
		},
		{
			name:       "multiple results become an array",
			expression: ".[] | .code",
			input:      `[{"code":7},{"code":8}]`,
			want:       []any{float64(7), float64(8)},
		},
		{
			name:       "no results",
			expression: ".[] | select(.code > 100)",
			input:      `[{"code":7}]`,
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			input:      `{}`,
			wantErr:    "invalid jq expression",
		},
		{
			name:    "invalid input",
			input:   `{`,
			wantErr: "invalid JSON input",
		},
		{
			name:       "runtime error",
			expression: ".speed + \"x\"",
			input:      `{"speed":1}`,
			wantErr:    "cannot add",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(0, 0)
			got, err := e.Filter(context.Background(), tt.expression, []byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_InputTooLarge(t *testing.T) {
	e := NewExecutor(time.Second, 16)
	_, err := e.Filter(context.Background(), ".", []byte(`"`+strings.Repeat("x", 32)+`"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestExecutor_Validate(t *testing.T) {
	e := NewExecutor(0, 0)
	assert.NoError(t, e.Validate(""))
	assert.NoError(t, e.Validate(".foo | length"))
	assert.Error(t, e.Validate(".["))
	assert.Error(t, e.Validate("undefined_function_xyz"))
}
