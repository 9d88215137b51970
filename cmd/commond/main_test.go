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

package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	commonderrors "github.com/tombee/commond/pkg/errors"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))

	bind := &commonderrors.ListenError{Kind: commonderrors.ListenBind, Network: "unix", Address: "/tmp/c.sock", Err: errors.New("in use")}
	sock := &commonderrors.ListenError{Kind: commonderrors.ListenSocket, Network: "inet", Address: "h:1", Err: errors.New("no fd")}
	assert.Equal(t, -2, exitCode(fmt.Errorf("start: %w", bind)))
	assert.Equal(t, -1, exitCode(sock))
}
