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

package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tombee/commond/internal/registry"
)

// ErrBadArguments marks argument lists that do not fit the command.
var ErrBadArguments = errors.New("bad arguments")

type argList []json.RawMessage

func (a argList) atMost(n int) error {
	if len(a) > n {
		return fmt.Errorf("%w: expected at most %d arguments, got %d", ErrBadArguments, n, len(a))
	}
	return nil
}

// present reports whether argument i was sent and is not null.
func (a argList) present(i int) bool {
	return i < len(a) && string(a[i]) != "null"
}

func (a argList) decode(i int, name string, v any) error {
	if !a.present(i) {
		return fmt.Errorf("%w: missing %s (argument %d)", ErrBadArguments, name, i)
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadArguments, name, err)
	}
	return nil
}

func (a argList) stringAt(i int, name string) (string, error) {
	var s string
	err := a.decode(i, name, &s)
	return s, err
}

// idAt reads a string that becomes one half of a composite alert id, so it
// must not contain the separator.
func (a argList) idAt(i int, name string) (string, error) {
	s, err := a.stringAt(i, name)
	if err != nil {
		return "", err
	}
	if strings.Contains(s, registry.CompositeSeparator) {
		return "", fmt.Errorf("%w: %s must not contain %q", ErrBadArguments, name, registry.CompositeSeparator)
	}
	return s, nil
}

func (a argList) optStringAt(i int, name string) (string, bool, error) {
	if !a.present(i) {
		return "", false, nil
	}
	s, err := a.stringAt(i, name)
	return s, err == nil, err
}

func (a argList) optIntAt(i int, name string) (*int, error) {
	if !a.present(i) {
		return nil, nil
	}
	var n int
	if err := a.decode(i, name, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
