/*
 * Copyright 2025 Graywatch Security.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/portspec"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultScanTarget    = "127.0.0.1"
	DefaultEmitterBuffer = 256
)

var (
	errListenPortsRequired = errors.New("listen_ports is required")
	errScanPortsRequired   = errors.New("scan_ports is required when active scanning is enabled")
	errNonPositiveTimeout  = errors.New("connection timeout must be positive")
)

// Config is the validated process configuration. It is immutable after
// Validate and shared read-only across all supervisor tasks.
type Config struct {
	ListenPorts   string          `json:"listen_ports" yaml:"listen_ports"`
	ScanPorts     string          `json:"scan_ports,omitempty" yaml:"scan_ports,omitempty"`
	ScanTarget    string          `json:"scan_target,omitempty" yaml:"scan_target,omitempty"`
	Timeout       logger.Duration `json:"connection_timeout,omitempty" yaml:"connection_timeout,omitempty"`
	Active        bool            `json:"active" yaml:"active"`
	EmitterBuffer int             `json:"emitter_buffer,omitempty" yaml:"emitter_buffer,omitempty"`
	Logging       *logger.Config  `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// Validate applies defaults and checks every field a supervisor depends on.
// Any error here is fatal at startup; the process never proceeds to
// listening on a partially valid configuration.
func (c *Config) Validate() error {
	if c.ListenPorts == "" {
		return errListenPortsRequired
	}

	if _, err := portspec.Parse(c.ListenPorts); err != nil {
		return fmt.Errorf("listen_ports: %w", err)
	}

	if c.Active && c.ScanPorts == "" {
		return errScanPortsRequired
	}

	if c.ScanPorts != "" {
		if _, err := portspec.Parse(c.ScanPorts); err != nil {
			return fmt.Errorf("scan_ports: %w", err)
		}
	}

	if c.Timeout == 0 {
		c.Timeout = logger.Duration(DefaultTimeout)
	}

	if c.Timeout < 0 {
		return errNonPositiveTimeout
	}

	if c.ScanTarget == "" {
		c.ScanTarget = DefaultScanTarget
	}

	if c.EmitterBuffer <= 0 {
		c.EmitterBuffer = DefaultEmitterBuffer
	}

	return nil
}

// ConnectionTimeout returns the probe/accept bound as a time.Duration.
func (c *Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.Timeout)
}
