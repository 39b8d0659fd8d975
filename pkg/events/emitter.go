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

// Package events decouples event emission from the detection path. A slow
// or blocked logging sink must never create backpressure that suppresses
// detection, so the emitter buffers and drops rather than blocks.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/models"
)

// Emitter is the narrow interface through which supervisors hand results
// to the logging collaborator. Emit is fire-and-forget and never blocks.
type Emitter interface {
	Emit(event models.Event)
}

// LogEmitter buffers events on a bounded channel drained by a single sink
// goroutine that writes them through a zerolog-backed logger. When the
// buffer is full the oldest event is dropped and counted; newest events
// win because they describe the current state of the network.
type LogEmitter struct {
	logger  logger.Logger
	ch      chan models.Event
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

var _ Emitter = (*LogEmitter)(nil)

// NewLogEmitter starts the sink goroutine. buffer must be positive.
func NewLogEmitter(log logger.Logger, buffer int) *LogEmitter {
	if buffer <= 0 {
		buffer = models.DefaultEmitterBuffer
	}

	e := &LogEmitter{
		logger: log,
		ch:     make(chan models.Event, buffer),
		done:   make(chan struct{}),
	}

	go e.sink()

	return e
}

// Emit enqueues the event without ever blocking the caller. Safe under
// concurrent producers.
func (e *LogEmitter) Emit(event models.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.dropped.Add(1)
		return
	}

	select {
	case e.ch <- event:
		return
	default:
	}

	// Full: evict the oldest queued event, then retry once. The sink may
	// have raced us to the eviction, in which case the retry lands.
	select {
	case <-e.ch:
		e.dropped.Add(1)
	default:
	}

	select {
	case e.ch <- event:
	default:
		e.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was
// full or the emitter was already closed.
func (e *LogEmitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops accepting events, flushes the queue through the sink, and
// reports the final drop count.
func (e *LogEmitter) Close() {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return
	}

	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	<-e.done

	if n := e.dropped.Load(); n > 0 {
		e.logger.Warn().Uint64("dropped_events", n).Msg("Event buffer overflowed during run")
	}
}

func (e *LogEmitter) sink() {
	defer close(e.done)

	for event := range e.ch {
		e.write(event)
	}
}

func (e *LogEmitter) write(event models.Event) {
	entry := e.eventLevel(event.Kind).
		Time("event_time", event.Timestamp).
		Uint16("port", event.Port).
		Str("kind", string(event.Kind))

	if event.Peer != "" {
		entry = entry.Str("peer", event.Peer)
	}

	if event.Detail != "" {
		entry = entry.Str("detail", event.Detail)
	}

	entry.Msg(eventMessage(event.Kind))
}

func (e *LogEmitter) eventLevel(kind models.OutcomeKind) *zerolog.Event {
	switch kind {
	case models.KindConnected, models.KindScanComplete:
		return e.logger.Info()
	case models.KindRefused, models.KindTimedOut:
		return e.logger.Debug()
	case models.KindBindFailed:
		return e.logger.Error()
	default:
		return e.logger.Warn()
	}
}

func eventMessage(kind models.OutcomeKind) string {
	switch kind {
	case models.KindConnected:
		return "Connection observed"
	case models.KindRefused:
		return "Connection refused"
	case models.KindTimedOut:
		return "Probe timed out"
	case models.KindBindFailed:
		return "Port bind failed"
	case models.KindScanComplete:
		return "Scan pass complete"
	default:
		return "Probe error"
	}
}
