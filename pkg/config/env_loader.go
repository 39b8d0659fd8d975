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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/models"
)

// Environment variable names, kept compatible with earlier deployments of
// the sentinel.
const (
	EnvListenPorts = "PORTS"
	EnvScanPorts   = "SCAN_PORTS"
	EnvScanTarget  = "SCAN_TARGET"
	EnvActive      = "ACTIVE"
	EnvTimeoutSecs = "CONNECTION_TIMEOUT_SECS"
	EnvLogLevel    = "LOG_LEVEL"
)

// applyEnv overlays environment variables onto cfg. Unset variables leave
// the file-provided values alone.
func applyEnv(cfg *models.Config) error {
	if v := os.Getenv(EnvListenPorts); v != "" {
		cfg.ListenPorts = v
	}

	if v := os.Getenv(EnvScanPorts); v != "" {
		cfg.ScanPorts = v
	}

	if v := os.Getenv(EnvScanTarget); v != "" {
		cfg.ScanTarget = v
	}

	if v := os.Getenv(EnvActive); v != "" {
		cfg.Active = parseBool(v)
	}

	if v := os.Getenv(EnvTimeoutSecs); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvTimeoutSecs, v)
		}

		cfg.Timeout = logger.Duration(time.Duration(secs) * time.Second)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		if cfg.Logging == nil {
			cfg.Logging = &logger.Config{}
		}

		cfg.Logging.Level = strings.ToLower(v)
	}

	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
