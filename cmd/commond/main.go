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

// Command commond is the shared-register daemon.
//
//	commond [flags] unix <socket-path> [coordination-dir]
//	commond [flags] inet <host> <port> [coordination-dir]
//
// Without positional arguments the listener comes from the config file and
// environment. Bind failures exit with the codes hosts expect: -1 when the
// socket cannot be created and -2 when the address is taken.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/tombee/commond/internal/daemon"
	commonderrors "github.com/tombee/commond/pkg/errors"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("commond", pflag.ExitOnError)
	var (
		configPath  = flags.StringP("config", "c", "", "Path to config file")
		pidFile     = flags.String("pid-file", "", "Write the daemon PID to this file")
		metricsAddr = flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
		allowRemote = flags.Bool("allow-remote", false, "Allow binding to non-localhost addresses (SECURITY WARNING)")
		showVersion = flags.BoolP("version", "v", false, "Show version information")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "%v\n\nFlags:\n%s", daemon.ErrUsage, flags.FlagUsages())
	}
	flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("commond %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	opts := daemon.RunOptions{
		Version:     version,
		Commit:      commit,
		BuildDate:   buildDate,
		ConfigPath:  *configPath,
		PIDFile:     *pidFile,
		MetricsAddr: *metricsAddr,
		AllowRemote: *allowRemote,
	}
	if err := daemon.ParseArgs(flags.Args(), &opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(exitCode(daemon.Run(opts)))
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var le *commonderrors.ListenError
	if errors.As(err, &le) {
		return le.ExitCode()
	}
	return 1
}
