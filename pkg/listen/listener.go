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

// Package listen runs one long-lived accept loop per configured port to
// detect unexpected inbound connections.
package listen

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/graywatch/otsentinel/pkg/events"
	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/models"
	"github.com/graywatch/otsentinel/pkg/portspec"
	"github.com/graywatch/otsentinel/pkg/probe"
)

// PeerHook is invoked for every accepted connection. Implementations must
// return quickly; the accept loop calls it inline before resuming.
type PeerHook func(peer net.Addr)

// deadlineListener is the subset of *net.TCPListener the accept loop
// needs: a deadline bounds each accept wait so cancellation is observed
// within one timeout interval.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// Supervisor owns one accept-loop goroutine per listen-set port. A single
// port's bind failure or runtime error never halts the sibling ports.
type Supervisor struct {
	ports   portspec.PortSet
	timeout time.Duration
	emitter events.Emitter
	logger  logger.Logger
	onPeer  PeerHook

	wg    sync.WaitGroup
	mu    sync.Mutex
	bound []uint16
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPeerHook registers a callback fired on every accepted connection,
// used to trigger reactive scans of the connecting peer.
func WithPeerHook(hook PeerHook) Option {
	return func(s *Supervisor) {
		s.onPeer = hook
	}
}

func NewSupervisor(ports portspec.PortSet, timeout time.Duration, emitter events.Emitter, log logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		ports:   ports,
		timeout: timeout,
		emitter: emitter,
		logger:  log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start binds every port in the set and spawns its accept loop. Bind
// failures are emitted as BindFailed events and the port is skipped;
// Start itself only reports how many ports came up.
func (s *Supervisor) Start(ctx context.Context) int {
	warnPrivilegedPorts(s.ports, s.logger)

	for _, port := range s.ports.Ports() {
		ln, err := probe.Bind(port)
		if err != nil {
			s.logger.Error().Err(err).Uint16("port", port).Msg("Failed to bind listener")
			s.emitter.Emit(models.Event{
				Timestamp: time.Now(),
				Port:      port,
				Kind:      models.KindBindFailed,
				Detail:    err.Error(),
			})

			continue
		}

		dl, ok := ln.(deadlineListener)
		if !ok {
			// net.Listen("tcp", ...) always returns a *net.TCPListener.
			_ = ln.Close()
			s.logger.Error().Uint16("port", port).Msg("Listener does not support deadlines")

			continue
		}

		s.mu.Lock()
		s.bound = append(s.bound, port)
		s.mu.Unlock()

		s.logger.Info().Uint16("port", port).Msg("Listening")

		s.wg.Add(1)

		go func(port uint16, dl deadlineListener) {
			defer s.wg.Done()

			s.acceptLoop(ctx, port, dl)
		}(port, dl)
	}

	return len(s.BoundPorts())
}

// Wait blocks until every accept loop has exited and released its socket.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// BoundPorts returns the ports that bound successfully, in bind order.
func (s *Supervisor) BoundPorts() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint16, len(s.bound))
	copy(out, s.bound)

	return out
}

// acceptLoop accepts inbound connections until ctx is canceled. Each wait
// is bounded by the configured timeout so shutdown is observed within one
// interval. The socket is closed on every exit path.
func (s *Supervisor) acceptLoop(ctx context.Context, port uint16, ln deadlineListener) {
	defer func() {
		_ = ln.Close()
		s.logger.Debug().Uint16("port", port).Msg("Listener closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := ln.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			s.logger.Error().Err(err).Uint16("port", port).Msg("Failed to arm accept deadline")
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			if isTimeout(err) {
				// Idle interval with no connection attempt: not an event,
				// just the cooperative yield point for cancellation.
				s.logger.Trace().Uint16("port", port).Msg("Accept wait idle")
				continue
			}

			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			s.emitter.Emit(models.Event{
				Timestamp: time.Now(),
				Port:      port,
				Kind:      models.KindError,
				Detail:    err.Error(),
			})

			continue
		}

		s.handleConn(port, conn)
	}
}

// handleConn records the connection and closes it immediately. This is a
// detection instrument, not a server: no payload is read or written.
func (s *Supervisor) handleConn(port uint16, conn net.Conn) {
	peer := conn.RemoteAddr()

	s.emitter.Emit(models.Event{
		Timestamp: time.Now(),
		Port:      port,
		Kind:      models.KindConnected,
		Peer:      peer.String(),
	})

	_ = conn.Close()

	if s.onPeer != nil {
		s.onPeer(peer)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// warnPrivilegedPorts flags well-known ports that need elevated privileges
// to bind on most systems. Geteuid returns -1 on Windows, which skips the
// warning.
func warnPrivilegedPorts(ports portspec.PortSet, log logger.Logger) {
	euid := os.Geteuid()
	if euid <= 0 {
		return
	}

	if min := ports.Min(); min > 0 && min <= 1024 {
		log.Warn().
			Int("euid", euid).
			Uint16("port", min).
			Msg("Well-known ports in the listen set usually require root")
	}
}
