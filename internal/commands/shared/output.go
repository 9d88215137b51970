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
	"encoding/json"
	"fmt"
	"io"
)

// ParseJSONArg decodes a command-line value. Text that is not valid JSON is
// taken as a plain string, so `value put plc mode auto` works unquoted.
func ParseJSONArg(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// PrintValue writes v as compact JSON on its own line. Strings print bare.
func PrintValue(w io.Writer, v any) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	if raw, ok := v.(json.RawMessage); ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			_, err := fmt.Fprintln(w, s)
			return err
		}
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// PrintBool writes a lookup answer as text, or as an envelope with --json.
func PrintBool(w io.Writer, command string, found bool) error {
	if GetJSON() {
		return EmitJSON(w, NewLookup(command, found, nil))
	}
	_, err := fmt.Fprintln(w, found)
	return err
}

// PrintOK confirms a mutation.
func PrintOK(w io.Writer, command string) error {
	if GetJSON() {
		return EmitJSON(w, NewResult(command, true))
	}
	return nil
}
