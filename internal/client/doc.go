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
Package client is the stub plugins use to talk to commond.

A Client holds one connection, opened on first use, and sends one request
at a time. Every call blocks until its single reply arrives.

	c := client.New(client.NewUnixTransport("/run/commond/commond.sock"), "plc-main")
	defer c.Close()

	if err := c.PutValue(ctx, "plc", "speed", 42); err != nil {
	    // *errors.ConnectionError when the daemon is not running
	}

	var speed int
	found, err := c.GetValue(ctx, "plc", "speed", &speed)

# Absent values

Lookups report a missing entry through their found result. A stored false
or null is found, with that value.

# Transport

Hosts are written unix:///path/to/socket or tcp://host:port:

	t, err := client.ParseHost(os.Getenv("COMMOND_CLIENT_HOST"))
*/
package client
