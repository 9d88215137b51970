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
	"io"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// ResultResponse carries one command result. Found is omitted for
// commands that do not look anything up.
type ResultResponse struct {
	JSONResponse
	Found  *bool `json:"found,omitempty"`
	Result any   `json:"result,omitempty"`
}

// NewResult builds a successful envelope for command.
func NewResult(command string, result any) ResultResponse {
	return ResultResponse{
		JSONResponse: JSONResponse{Version: "1.0", Command: command, Success: true},
		Result:       result,
	}
}

// NewLookup builds an envelope for a lookup that may be absent.
func NewLookup(command string, found bool, result any) ResultResponse {
	r := NewResult(command, result)
	r.Found = &found
	return r
}

// EmitJSON writes response as indented JSON.
func EmitJSON(w io.Writer, response any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
