//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package config loads kerneld's on-disk configuration (spec §6
// ServerConfig plus resource-limit tier presets) from YAML, applying
// defaults for anything the file omits.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nestybox/kerneld/core"
)

const (
	defaultAddress        = ":7620"
	defaultTimeoutSecs     = 30
	defaultKeepaliveSecs   = 60
	defaultKeepaliveProbes = 3
)

// ServerConfig is the RPC surface's listen/timeout configuration (spec
// §6: "ServerConfig { address, timeout_secs, keepalive_* }").
type ServerConfig struct {
	Address         string `yaml:"address"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
	KeepaliveSecs   int    `yaml:"keepalive_secs"`
	KeepaliveProbes int    `yaml:"keepalive_probes"`
}

// Timeout renders TimeoutSecs as a time.Duration for net/http and
// gorilla/websocket deadline calls.
func (c ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Keepalive renders KeepaliveSecs as a time.Duration.
func (c ServerConfig) Keepalive() time.Duration {
	return time.Duration(c.KeepaliveSecs) * time.Second
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:         defaultAddress,
		TimeoutSecs:     defaultTimeoutSecs,
		KeepaliveSecs:   defaultKeepaliveSecs,
		KeepaliveProbes: defaultKeepaliveProbes,
	}
}

// Config is kerneld's full on-disk configuration: the RPC server
// settings plus the resource-limit tier a newly-created process
// defaults to when its creation request doesn't specify one.
type Config struct {
	Server             ServerConfig `yaml:"server"`
	DefaultTier        string       `yaml:"default_tier"`
	ClipboardHistory   int          `yaml:"clipboard_history"`
	SearchMaxScanBytes int64        `yaml:"search_max_scan_bytes"`
}

// Default returns the configuration kerneld runs with when no config
// file is supplied.
func Default() Config {
	return Config{
		Server:             defaultServerConfig(),
		DefaultTier:        "standard",
		ClipboardHistory:   20,
		SearchMaxScanBytes: 1 << 20,
	}
}

// Tier resolves DefaultTier to a core.Tier, falling back to
// TierStandard for an empty or unrecognized value rather than failing
// startup over a typo in a rarely-touched field.
func (c Config) Tier() core.Tier {
	switch c.DefaultTier {
	case "minimal":
		return core.TierMinimal
	case "privileged":
		return core.TierPrivileged
	default:
		return core.TierStandard
	}
}

// Load reads a YAML config file at path, overlaying it onto Default()
// so a file that only sets one field leaves the rest at their
// defaults. A missing file is not an error: Default() is returned
// unchanged, matching the daemon's "runs out of the box" expectation.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
