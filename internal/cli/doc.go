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

/*
Package cli provides the root command for commonctl.

# Command Tree

	commonctl
	├── value     put, get, has
	├── command   put, get, has, clear
	├── alert     trigger, list, recover, live, watch
	├── engine    stop, status
	├── daemon    status, stop
	└── version

Global flags select the daemon (--host), the alert owner (--owner), a config
file (--config), and JSON output (--json). Individual commands live in the
internal/commands subpackages.
*/
package cli
