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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/commond/pkg/errors"
)

// Exit codes for commonctl
const (
	ExitSuccess     = 0
	ExitFailed      = 1
	ExitUnreachable = 2
	ExitAbsent      = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewAbsentError reports a value or command that does not exist.
func NewAbsentError(msg string) *ExitError {
	return &ExitError{Code: ExitAbsent, Message: msg}
}

// ClassifyError maps client failures to exit codes. Any error classified as
// a connection failure becomes ExitUnreachable; anything else is returned
// unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if pkgerrors.As(err, &exitErr) {
		return err
	}
	var classified pkgerrors.ErrorClassifier
	if pkgerrors.As(err, &classified) && classified.ErrorType() == "connection" {
		return &ExitError{Code: ExitUnreachable, Message: "daemon unreachable", Cause: err}
	}
	return err
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// HandleExitError prints err and exits with the matching code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	// Absent lookups are an answer, not a failure worth shouting about.
	if ExitCode(err) != ExitAbsent || !GetJSON() {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		printUserVisibleSuggestion(os.Stderr, err)
	}
	os.Exit(ExitCode(err))
}

// printUserVisibleSuggestion checks if an error implements UserVisibleError
// and prints the suggestion if available.
func printUserVisibleSuggestion(w io.Writer, err error) {
	for err != nil {
		if userErr, ok := err.(pkgerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if suggestion := userErr.Suggestion(); suggestion != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
