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

package errors

import (
	"errors"
	"fmt"
	"os"
)

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "daemon.listen.port")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ConnectionError is returned by clients that cannot reach the daemon.
// It carries the address that failed so callers can report it.
type ConnectionError struct {
	// Network is "unix" or "tcp".
	Network string

	// Address is the socket path or host:port that was dialed.
	Address string

	// Err is the underlying dial error.
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to commond at %s://%s: %v", e.Network, e.Address, e.Err)
}

// Unwrap returns the underlying dial error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsUserVisible implements UserVisibleError.
func (e *ConnectionError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConnectionError) UserMessage() string {
	return fmt.Sprintf("commond is not reachable at %s", e.Address)
}

// Suggestion implements UserVisibleError.
func (e *ConnectionError) Suggestion() string {
	if e.Network == "unix" {
		return fmt.Sprintf("Start the daemon with: commond unix %s", e.Address)
	}
	return "Start the daemon with: commond inet <host> <port>"
}

// ErrorType implements ErrorClassifier.
func (e *ConnectionError) ErrorType() string { return "connection" }

// IsRetryable implements ErrorClassifier. The daemon may simply not be up yet.
func (e *ConnectionError) IsRetryable() bool { return true }

// ListenErrorKind distinguishes the two startup failures of the daemon.
type ListenErrorKind string

const (
	// ListenSocket means the socket could not be created at all.
	ListenSocket ListenErrorKind = "socket"

	// ListenBind means the socket was created but could not be bound.
	ListenBind ListenErrorKind = "bind"
)

// ListenError is a fatal daemon startup failure.
type ListenError struct {
	Kind    ListenErrorKind
	Network string
	Address string
	Err     error
}

// NewListenError classifies err by the syscall that failed. Anything other
// than socket(2) is reported as a bind failure.
func NewListenError(network, address string, err error) *ListenError {
	kind := ListenBind
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Syscall == "socket" {
		kind = ListenSocket
	}
	return &ListenError{Kind: kind, Network: network, Address: address, Err: err}
}

// Error implements the error interface.
func (e *ListenError) Error() string {
	return fmt.Sprintf("%s failed for %s %s: %v", e.Kind, e.Network, e.Address, e.Err)
}

// Unwrap returns the underlying error.
func (e *ListenError) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit code for this failure:
// -1 when the socket could not be created, -2 when it could not be bound.
func (e *ListenError) ExitCode() int {
	if e.Kind == ListenSocket {
		return -1
	}
	return -2
}

// ProtocolError is returned when the daemon answers a request with an error reply.
type ProtocolError struct {
	// Method is the command that was sent (e.g., "putv").
	Method string

	// Code is the machine-readable error code from the reply.
	Code string

	// Message is the daemon's description.
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", e.Method, e.Code, e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ProtocolError) ErrorType() string { return "protocol" }

// IsRetryable implements ErrorClassifier.
func (e *ProtocolError) IsRetryable() bool { return false }
