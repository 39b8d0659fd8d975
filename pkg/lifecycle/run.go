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

// Package lifecycle owns process startup and shutdown wiring: logger
// construction and the signal-driven run loop.
package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/graywatch/otsentinel/pkg/logger"
)

// Service is a long-running component driven by Run. Run(ctx) must block
// until ctx is canceled and return only after its resources are released.
type Service interface {
	Run(ctx context.Context) error
}

// Run executes the service until it fails or the process receives SIGINT
// or SIGTERM, then waits for its bounded teardown.
func Run(ctx context.Context, svc Service, log logger.Logger) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		return svc.Run(gctx)
	})

	err := g.Wait()

	if shutdownErr := ShutdownLogger(); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("Failed to shut down log export")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("Shutdown complete")

	return nil
}
