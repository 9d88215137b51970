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
Package lifecycle supervises the commond process from the outside.

# PID File Management

The daemon can hold an exclusively locked PID file for its lifetime:

	manager := lifecycle.NewPIDFileManager("/run/commond/commond.pid")
	if err := manager.Create(os.Getpid()); err != nil {
	    // another daemon owns it
	}
	defer manager.Remove()

# Stopping a Daemon

Signals are only sent once the PID is confirmed to belong to commond, so a
stale PID file cannot take down an unrelated process:

	pid, err := manager.Read()
	if err == nil && lifecycle.IsCommondProcess(pid) {
	    err = lifecycle.GracefulShutdown(pid, 5*time.Second, true)
	}

# Spawning a Daemon

A host engine can start its own daemon and wait for the socket to appear:

	child, err := lifecycle.NewSpawner().Start("commond", []string{"unix", sock}, logPath)
	if err != nil {
	    // handle error
	}
	if err := lifecycle.WaitForSocket(sock, 100*time.Millisecond); err != nil {
	    child.Stop(time.Second, true)
	}
*/
package lifecycle
