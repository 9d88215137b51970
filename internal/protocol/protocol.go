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
	"errors"
	"fmt"
	"regexp"
)

const (
	// MaxRequestSize is the largest request the daemon reads in one chunk.
	MaxRequestSize = 1024

	// MaxReplySize is the largest reply a client accepts, terminator included.
	MaxReplySize = 8192

	// ExitCommand closes the connection server-side.
	ExitCommand = "exit"

	// Terminator ends every reply.
	Terminator byte = 0
)

// Command names. The set is closed; anything else is an unknown command.
const (
	MethodPutValue     = "putv"
	MethodHasValue     = "hasv"
	MethodGetValue     = "getv"
	MethodStop         = "stop"
	MethodStopped      = "stopped"
	MethodPutCommand   = "putc"
	MethodHasCommand   = "hasc"
	MethodGetCommand   = "getc"
	MethodClearCommand = "clearc"
	MethodAlert        = "alrt"
	MethodAlerts       = "alrtget"
	MethodRecoverAlert = "alrtq"
	MethodLiveAlertIDs = "ialrtq"
)

// Methods lists every command the daemon answers.
var Methods = []string{
	MethodPutValue, MethodHasValue, MethodGetValue,
	MethodStop, MethodStopped,
	MethodPutCommand, MethodHasCommand, MethodGetCommand, MethodClearCommand,
	MethodAlert, MethodAlerts, MethodRecoverAlert, MethodLiveAlertIDs,
}

var (
	// ErrEmptyRequest is returned for a request with no content.
	ErrEmptyRequest = errors.New("protocol: empty request")

	// ErrMalformedRequest is returned when the command name or argument list
	// cannot be parsed.
	ErrMalformedRequest = errors.New("protocol: malformed request")

	// ErrRequestTooLarge is returned when an encoded request exceeds MaxRequestSize.
	ErrRequestTooLarge = errors.New("protocol: request too large")

	// ErrReplyTooLarge is returned when a reply exceeds MaxReplySize.
	ErrReplyTooLarge = errors.New("protocol: reply too large")

	// ErrMalformedReply is returned when a reply cannot be decoded.
	ErrMalformedReply = errors.New("protocol: malformed reply")
)

var methodPattern = regexp.MustCompile(`^\w+`)

// Request is one parsed command.
type Request struct {
	Method string
	Args   []json.RawMessage
}

// MethodName returns the leading command token of line, or "" if there is none.
func MethodName(line []byte) string {
	return string(methodPattern.Find(bytes.TrimSpace(line)))
}

// IsExit reports whether line is the disconnect command.
func IsExit(line []byte) bool {
	return string(bytes.TrimSpace(line)) == ExitCommand
}

// ParseRequest splits a request line into its command name and arguments.
// A bare command name is a request with no arguments.
func ParseRequest(line []byte) (*Request, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptyRequest
	}

	method := methodPattern.Find(line)
	if method == nil {
		return nil, fmt.Errorf("%w: missing command name", ErrMalformedRequest)
	}

	req := &Request{Method: string(method), Args: []json.RawMessage{}}

	rest := bytes.TrimSpace(line[len(method):])
	if len(rest) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(rest, &req.Args); err != nil {
		return nil, fmt.Errorf("%w: arguments must be a JSON array: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// NewRequest builds a request, marshaling each argument.
func NewRequest(method string, args ...any) (*Request, error) {
	req := &Request{Method: method, Args: make([]json.RawMessage, 0, len(args))}
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal argument %d: %w", i, err)
		}
		req.Args = append(req.Args, data)
	}
	return req, nil
}

// Encode renders the request line. It fails if the result would not fit in
// a single daemon read.
func (r *Request) Encode() ([]byte, error) {
	args, err := json.Marshal(r.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(r.Method)
	buf.WriteByte(' ')
	buf.Write(args)

	if buf.Len() > MaxRequestSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrRequestTooLarge, buf.Len(), MaxRequestSize)
	}
	return buf.Bytes(), nil
}
