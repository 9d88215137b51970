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

// Package protocol defines the commond wire format.
//
// A request is a single write of a command name followed by a JSON array of
// positional arguments:
//
//	putv ["plc","temp",21.5]
//
// The whole request must fit in MaxRequestSize bytes. The daemon reads it
// with one read call and does not reassemble requests split across reads.
// The literal "exit" asks the daemon to close the connection.
//
// A reply is one JSON object followed by a single Terminator byte:
//
//	{"status":"ok","value":21.5}\x00
//	{"status":"absent"}\x00
//	{"status":"error","error":{"code":"unknown_command","message":"..."}}\x00
//
// "absent" is distinct from an ok reply whose value is false or null, so a
// stored false survives the round trip.
package protocol
