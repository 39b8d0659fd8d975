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

// Package scan drives one concurrent connect-probe pass over a port set.
package scan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/graywatch/otsentinel/pkg/events"
	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/models"
	"github.com/graywatch/otsentinel/pkg/portspec"
	"github.com/graywatch/otsentinel/pkg/probe"
)

// Supervisor runs scan passes. It holds no per-activation state, so every
// Run produces an independent report and concurrent activations are safe.
type Supervisor struct {
	timeout time.Duration
	emitter events.Emitter
	logger  logger.Logger
}

func NewSupervisor(timeout time.Duration, emitter events.Emitter, log logger.Logger) *Supervisor {
	if timeout == 0 {
		timeout = models.DefaultTimeout
	}

	return &Supervisor{
		timeout: timeout,
		emitter: emitter,
		logger:  log,
	}
}

// Run performs one complete scan pass against host: exactly one probe
// goroutine per port, each bounded by the supervisor timeout. A slow or
// unreachable port delays nothing beyond its own bound; the pass completes
// once every probe has resolved.
func (s *Supervisor) Run(ctx context.Context, host string, ports portspec.PortSet) *models.ScanReport {
	report := &models.ScanReport{
		Host:      host,
		StartedAt: time.Now(),
	}

	if ports.Len() == 0 {
		report.CompletedAt = time.Now()
		return report
	}

	s.logger.Info().
		Str("host", host).
		Int("ports", ports.Len()).
		Msg("Starting scan pass")

	resultCh := make(chan models.Outcome, ports.Len())

	var wg sync.WaitGroup

	for _, port := range ports.Ports() {
		wg.Add(1)

		go func(port uint16) {
			defer wg.Done()

			outcome := probe.Connect(ctx, host, port, s.timeout)

			// Buffered to the full set size; never blocks a probe task.
			resultCh <- outcome
		}(port)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for outcome := range resultCh {
		report.Results = append(report.Results, outcome)
		report.Count(outcome)

		s.emitter.Emit(models.Event{
			Timestamp: outcome.Timestamp,
			Port:      outcome.Port,
			Kind:      outcome.Kind,
			Peer:      host,
			Detail:    outcome.Reason,
		})
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Port < report.Results[j].Port
	})

	report.CompletedAt = time.Now()

	s.emitter.Emit(models.Event{
		Timestamp: report.CompletedAt,
		Kind:      models.KindScanComplete,
		Peer:      host,
		Detail:    summarize(report),
	})

	s.logger.Info().
		Str("host", host).
		Int("open", report.Open).
		Int("refused", report.Refused).
		Int("timed_out", report.TimedOut).
		Int("errored", report.Errored).
		Dur("elapsed", report.CompletedAt.Sub(report.StartedAt)).
		Msg("Scan pass complete")

	return report
}

func summarize(r *models.ScanReport) string {
	return fmt.Sprintf("scanned=%d open=%d refused=%d timed_out=%d errored=%d",
		len(r.Results), r.Open, r.Refused, r.TimedOut, r.Errored)
}
