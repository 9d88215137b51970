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

package log

import (
	"context"
	"log/slog"
	"time"
)

// Request describes one wire request for logging purposes.
type Request struct {
	// Command is the leading token of the request line (e.g., "putv").
	Command string

	// ConnID identifies the connection the request arrived on.
	ConnID string

	// RemoteAddr is the peer address of the client.
	RemoteAddr string

	// Size is the request length in bytes after trimming.
	Size int
}

// Response describes the outcome of one wire request.
type Response struct {
	// Success is false when the reply carried an error.
	Success bool

	// Error is the error message if the request failed.
	Error string

	// DurationMs is the handling time in milliseconds.
	DurationMs int64
}

// LogRequest logs an incoming request at debug level.
func LogRequest(logger *slog.Logger, req *Request) {
	logger.Debug("request received",
		EventKey, "request",
		CommandKey, req.Command,
		ConnIDKey, req.ConnID,
		RemoteKey, req.RemoteAddr,
		"size", req.Size,
	)
}

// LogResponse logs a completed request. Failures are logged at warn level
// because they are client mistakes, not daemon faults.
func LogResponse(logger *slog.Logger, req *Request, resp *Response) {
	attrs := []any{
		EventKey, "response",
		CommandKey, req.Command,
		ConnIDKey, req.ConnID,
		"success", resp.Success,
		DurationKey, resp.DurationMs,
	}

	level := slog.LevelDebug
	message := "request completed"
	if !resp.Success {
		attrs = append(attrs, "error", resp.Error)
		level = slog.LevelWarn
		message = "request failed"
	}

	logger.Log(context.Background(), level, message, attrs...)
}

// RequestMiddleware wraps request handling with logging.
type RequestMiddleware struct {
	logger *slog.Logger
}

// NewRequestMiddleware creates a new request logging middleware.
func NewRequestMiddleware(logger *slog.Logger) *RequestMiddleware {
	return &RequestMiddleware{logger: logger}
}

// Handler logs req, runs handler, and logs the outcome.
func (m *RequestMiddleware) Handler(req *Request, handler func() error) error {
	start := time.Now()
	LogRequest(m.logger, req)

	err := handler()

	resp := &Response{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	LogResponse(m.logger, req, resp)

	return err
}
