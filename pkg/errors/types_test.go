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

package errors_test

import (
	"errors"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	commonderrors "github.com/tombee/commond/pkg/errors"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *commonderrors.ConfigError
		wantMsg string
	}{
		{
			name:    "with key",
			err:     &commonderrors.ConfigError{Key: "daemon.listen.port", Reason: "must be between 1 and 65535"},
			wantMsg: "config error at daemon.listen.port: must be between 1 and 65535",
		},
		{
			name:    "without key",
			err:     &commonderrors.ConfigError{Reason: "file is empty"},
			wantMsg: "config error: file is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := &commonderrors.ConfigError{Key: "log", Reason: "unreadable", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &commonderrors.ConnectionError{Network: "unix", Address: "/run/commond.sock", Err: cause}

	assert.Equal(t, "cannot connect to commond at unix:///run/commond.sock: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsUserVisible())
	assert.Contains(t, err.Suggestion(), "commond unix /run/commond.sock")
	assert.Equal(t, "connection", err.ErrorType())
	assert.True(t, err.IsRetryable())

	tcp := &commonderrors.ConnectionError{Network: "tcp", Address: "127.0.0.1:9000", Err: cause}
	assert.Contains(t, tcp.Suggestion(), "commond inet")
}

func TestNewListenError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind commonderrors.ListenErrorKind
		wantCode int
	}{
		{
			name:     "socket syscall",
			err:      &net.OpError{Op: "listen", Net: "unix", Err: os.NewSyscallError("socket", syscall.EMFILE)},
			wantKind: commonderrors.ListenSocket,
			wantCode: -1,
		},
		{
			name:     "bind syscall",
			err:      &net.OpError{Op: "listen", Net: "unix", Err: os.NewSyscallError("bind", syscall.EADDRINUSE)},
			wantKind: commonderrors.ListenBind,
			wantCode: -2,
		},
		{
			name:     "unclassified",
			err:      errors.New("address already in use"),
			wantKind: commonderrors.ListenBind,
			wantCode: -2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := commonderrors.NewListenError("unix", "/tmp/x.sock", tt.err)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantCode, err.ExitCode())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestProtocolError(t *testing.T) {
	err := &commonderrors.ProtocolError{Method: "putv", Code: "bad_arguments", Message: "expected 3 arguments"}
	assert.Equal(t, "putv rejected (bad_arguments): expected 3 arguments", err.Error())
	assert.False(t, err.IsRetryable())

	var classifier commonderrors.ErrorClassifier
	assert.True(t, errors.As(error(err), &classifier))
	assert.Equal(t, "protocol", classifier.ErrorType())
}
