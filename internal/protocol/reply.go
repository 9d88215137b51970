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

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the outcome of a request.
type Status string

const (
	// StatusOK carries a value.
	StatusOK Status = "ok"

	// StatusAbsent means the requested entry does not exist.
	StatusAbsent Status = "absent"

	// StatusError carries an ErrorResponse.
	StatusError Status = "error"
)

// Error codes carried in error replies.
const (
	CodeUnknownCommand   = "unknown_command"
	CodeBadArguments     = "bad_arguments"
	CodeMalformedRequest = "malformed_request"
	CodeBackendError     = "backend_error"
	CodeReplyTooLarge    = "reply_too_large"
)

// ErrorResponse contains structured error information.
type ErrorResponse struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Reply is the daemon's answer to one request.
type Reply struct {
	Status Status          `json:"status"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  *ErrorResponse  `json:"error,omitempty"`
}

var trueValue = json.RawMessage("true")

// OK returns a reply carrying value.
func OK(value json.RawMessage) *Reply {
	return &Reply{Status: StatusOK, Value: value}
}

// OKTrue is the reply for mutations.
func OKTrue() *Reply {
	return OK(trueValue)
}

// NewOK marshals v into an ok reply.
func NewOK(v any) (*Reply, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply value: %w", err)
	}
	return OK(data), nil
}

// Absent returns the reply for a missing entry.
func Absent() *Reply {
	return &Reply{Status: StatusAbsent}
}

// Errorf returns an error reply.
func Errorf(code, format string, args ...any) *Reply {
	return &Reply{
		Status: StatusError,
		Error:  &ErrorResponse{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}

// Truthy reports whether the reply is an ok reply with a value other than
// false or null. Absent and error replies are never truthy.
func (r *Reply) Truthy() bool {
	if r.Status != StatusOK {
		return false
	}
	v := bytes.TrimSpace(r.Value)
	return len(v) > 0 && !bytes.Equal(v, []byte("false")) && !bytes.Equal(v, []byte("null"))
}

// Decode unmarshals the reply value into v.
func (r *Reply) Decode(v any) error {
	if r.Status != StatusOK {
		return fmt.Errorf("cannot decode %s reply", r.Status)
	}
	return json.Unmarshal(r.Value, v)
}

// Encode renders the reply followed by the terminator. A reply that would
// not fit in MaxReplySize is replaced with a reply_too_large error.
func (r *Reply) Encode() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(Errorf(CodeBackendError, "failed to encode reply: %v", err))
	}
	if len(data)+1 > MaxReplySize {
		data, _ = json.Marshal(Errorf(CodeReplyTooLarge, "reply of %d bytes exceeds %d", len(data)+1, MaxReplySize))
	}
	return append(data, Terminator)
}

// DecodeReply parses a reply, with or without its terminator.
func DecodeReply(data []byte) (*Reply, error) {
	data = bytes.TrimSuffix(data, []byte{Terminator})
	if len(data)+1 > MaxReplySize {
		return nil, ErrReplyTooLarge
	}

	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	switch r.Status {
	case StatusOK, StatusAbsent:
	case StatusError:
		if r.Error == nil {
			r.Error = &ErrorResponse{Code: CodeBackendError, Message: "error reply without details"}
		}
	default:
		return nil, fmt.Errorf("%w: unknown reply status %q", ErrMalformedReply, r.Status)
	}
	return &r, nil
}
