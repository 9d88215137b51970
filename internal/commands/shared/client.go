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
	"context"
	"time"

	"github.com/tombee/commond/internal/client"
	"github.com/tombee/commond/internal/config"
	"github.com/tombee/commond/internal/log"
	pkgerrors "github.com/tombee/commond/pkg/errors"
)

// DefaultCallTimeout bounds one commonctl invocation.
const DefaultCallTimeout = 10 * time.Second

// LoadConfig loads the config named by --config, or the defaults.
func LoadConfig() (*config.Config, error) {
	return config.Load(GetConfigPath())
}

// NewClient builds a client from --host and --owner, falling back to the
// client section of the config.
func NewClient() (*client.Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	host := GetHost()
	if host == "" {
		host = cfg.Client.Host
	}
	owner := GetOwner()
	if owner == "" {
		owner = cfg.Client.Owner
	}

	transport, err := client.ParseHost(host)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "invalid host")
	}
	return client.New(transport, owner,
		client.WithLogger(log.New(log.FromEnv())),
		client.WithTimeout(DefaultCallTimeout))
}

// WithClient runs fn with a fresh client and a bounded context, closes the
// client, and classifies the error for the exit code.
func WithClient(fn func(ctx context.Context, c *client.Client) error) error {
	c, err := NewClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultCallTimeout)
	defer cancel()
	return ClassifyError(fn(ctx, c))
}
