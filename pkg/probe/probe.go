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

// Package probe implements the bounded TCP primitives the supervisors are
// built on: one connect attempt and one listener bind.
package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/graywatch/otsentinel/pkg/models"
)

// Connect performs exactly one TCP connect attempt against host:port,
// bounded by timeout and by ctx. An established connection is closed
// immediately: OT devices are sensitive to extra traffic, so the probe
// never exchanges payload.
func Connect(ctx context.Context, host string, port uint16, timeout time.Duration) models.Outcome {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return models.Outcome{
			Port:      port,
			Kind:      classifyKind(probeCtx, err),
			Reason:    classifyReason(err),
			RespTime:  time.Since(start),
			Timestamp: time.Now(),
		}
	}

	_ = conn.Close()

	return models.Outcome{
		Port:      port,
		Kind:      models.KindConnected,
		RespTime:  time.Since(start),
		Timestamp: time.Now(),
	}
}

// Bind opens a listening socket on the given local port. Failure is
// per-port: callers report it and move on to sibling ports.
func Bind(port uint16) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(port))))
}

func classifyKind(ctx context.Context, err error) models.OutcomeKind {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return models.KindRefused
	}

	if ctx.Err() != nil {
		return models.KindTimedOut
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.KindTimedOut
	}

	return models.KindError
}

// classifyReason maps a dial error to a stable, inspectable reason code.
func classifyReason(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ""
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.EHOSTDOWN):
		return models.ReasonHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.ENETDOWN):
		return models.ReasonNetworkUnreachable
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ReasonDNSFailure
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ""
	}

	return models.ReasonIOError
}
