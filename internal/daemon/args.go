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

package daemon

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/tombee/commond/internal/config"
)

// ErrUsage is returned for malformed launch arguments.
var ErrUsage = errors.New("usage: commond <unix|inet> <path|host> [port] [coordination-dir]")

// ParseArgs reads the positional launch arguments into opts:
//
//	unix <socket-path> [coordination-dir]
//	inet <host> <port> [coordination-dir]
//
// No arguments leave the configured listener untouched.
func ParseArgs(args []string, opts *RunOptions) error {
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case config.NetworkUnix:
		if len(args) < 2 || len(args) > 3 {
			return ErrUsage
		}
		opts.Network = config.NetworkUnix
		opts.SocketPath = args[1]
		if len(args) == 3 {
			opts.CoordinationDir = args[2]
		}
	case config.NetworkInet:
		if len(args) < 3 || len(args) > 4 {
			return ErrUsage
		}
		port, err := strconv.Atoi(args[2])
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%w: invalid port %q", ErrUsage, args[2])
		}
		opts.Network = config.NetworkInet
		opts.Host = args[1]
		opts.Port = port
		if len(args) == 4 {
			opts.CoordinationDir = args[3]
		}
	default:
		return fmt.Errorf("%w: unknown network %q", ErrUsage, args[0])
	}
	return nil
}
