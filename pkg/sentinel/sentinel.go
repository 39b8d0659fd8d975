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

// Package sentinel wires the listener and scan supervisors into one
// long-running detection service.
package sentinel

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/graywatch/otsentinel/pkg/events"
	"github.com/graywatch/otsentinel/pkg/listen"
	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/models"
	"github.com/graywatch/otsentinel/pkg/portspec"
	"github.com/graywatch/otsentinel/pkg/scan"
)

var ErrNoListeners = errors.New("no listen port could be bound")

// Sentinel owns the emitter, the listener supervisor, and the scan
// supervisor for one process lifetime.
type Sentinel struct {
	cfg       *models.Config
	listenSet portspec.PortSet
	scanSet   portspec.PortSet
	emitter   *events.LogEmitter
	listeners *listen.Supervisor
	scanner   *scan.Supervisor
	logger    logger.Logger

	// runCtx is set once in Run, before any listener can fire the peer
	// hook; reactive scans inherit it so cancellation reaches them.
	runCtx context.Context

	// inflight coalesces reactive scans: at most one active pass per
	// target host at a time.
	mu       sync.Mutex
	inflight map[string]struct{}
	scanWG   sync.WaitGroup
}

// New builds a Sentinel from an already-validated configuration.
func New(cfg *models.Config, log logger.Logger) (*Sentinel, error) {
	listenSet, err := portspec.Parse(cfg.ListenPorts)
	if err != nil {
		return nil, err
	}

	var scanSet portspec.PortSet

	if cfg.ScanPorts != "" {
		scanSet, err = portspec.Parse(cfg.ScanPorts)
		if err != nil {
			return nil, err
		}
	}

	timeout := cfg.ConnectionTimeout()
	emitter := events.NewLogEmitter(log, cfg.EmitterBuffer)

	s := &Sentinel{
		cfg:       cfg,
		listenSet: listenSet,
		scanSet:   scanSet,
		emitter:   emitter,
		scanner:   scan.NewSupervisor(timeout, emitter, log),
		logger:    log,
		inflight:  make(map[string]struct{}),
	}

	s.listeners = listen.NewSupervisor(listenSet, timeout, emitter, log,
		listen.WithPeerHook(s.peerHook))

	return s, nil
}

// Run starts the listening set and, when active scanning is enabled, one
// startup pass against the configured target. It blocks until ctx is
// canceled, then tears everything down in bounded time.
func (s *Sentinel) Run(ctx context.Context) error {
	s.logger.Info().
		Str("listen_ports", s.listenSet.String()).
		Str("scan_ports", s.scanSet.String()).
		Bool("active", s.cfg.Active).
		Dur("timeout", s.cfg.ConnectionTimeout()).
		Msg("Sentinel starting")

	s.runCtx = ctx

	bound := s.listeners.Start(ctx)
	if bound == 0 {
		s.shutdown()
		return ErrNoListeners
	}

	if s.cfg.Active {
		s.TriggerScan(ctx, s.cfg.ScanTarget)
	}

	<-ctx.Done()

	s.logger.Info().Msg("Shutdown signal received, stopping all listeners")
	s.shutdown()

	return nil
}

// TriggerScan starts one scan activation against host unless one is
// already in flight for it. Activations are independent: each produces
// its own report.
func (s *Sentinel) TriggerScan(ctx context.Context, host string) {
	if !s.cfg.Active || s.scanSet.Len() == 0 {
		return
	}

	s.mu.Lock()

	if _, busy := s.inflight[host]; busy {
		s.mu.Unlock()
		s.logger.Debug().Str("host", host).Msg("Scan already in flight, coalescing")

		return
	}

	s.inflight[host] = struct{}{}
	s.mu.Unlock()

	s.scanWG.Add(1)

	go func() {
		defer s.scanWG.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, host)
			s.mu.Unlock()
		}()

		s.scanner.Run(ctx, host, s.scanSet)
	}()
}

// peerHook reacts to an accepted connection by scanning the peer that
// made it. In an OT network an unexpected client is exactly the host
// worth a closer look.
func (s *Sentinel) peerHook(peer net.Addr) {
	tcpAddr, ok := peer.(*net.TCPAddr)
	if !ok {
		return
	}

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	s.TriggerScan(ctx, tcpAddr.IP.String())
}

// ScansInFlight reports the number of currently running scan activations.
func (s *Sentinel) ScansInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inflight)
}

// Dropped exposes the emitter's drop counter.
func (s *Sentinel) Dropped() uint64 {
	return s.emitter.Dropped()
}

func (s *Sentinel) shutdown() {
	s.listeners.Wait()
	s.scanWG.Wait()
	s.emitter.Close()
	s.logger.Info().Msg("Sentinel stopped")
}
