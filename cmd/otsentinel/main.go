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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/graywatch/otsentinel/pkg/config"
	"github.com/graywatch/otsentinel/pkg/lifecycle"
	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/sentinel"
	"github.com/graywatch/otsentinel/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to sentinel config file (JSON or YAML); environment variables override file values")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	ctx := context.Background()

	cfg, err := config.NewConfig(nil).Load(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	sentinelLogger, err := lifecycle.CreateComponentLogger(ctx, "sentinel", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	sentinelLogger.Info().Str("version", version.GetFullVersion()).Msg("Starting otsentinel")

	svc, err := sentinel.New(cfg, sentinelLogger)
	if err != nil {
		return fmt.Errorf("failed to create sentinel: %w", err)
	}

	return lifecycle.Run(ctx, svc, sentinelLogger)
}
