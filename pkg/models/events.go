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

// Package models holds the shared data types of the sentinel.
package models

import "time"

// OutcomeKind classifies the result of one probe or one accept cycle.
type OutcomeKind string

const (
	KindConnected    OutcomeKind = "connected"
	KindRefused      OutcomeKind = "refused"
	KindTimedOut     OutcomeKind = "timed_out"
	KindError        OutcomeKind = "error"
	KindBindFailed   OutcomeKind = "bind_failed"
	KindScanComplete OutcomeKind = "scan_complete"
)

// Stable reason codes for Error outcomes.
const (
	ReasonHostUnreachable    = "host_unreachable"
	ReasonNetworkUnreachable = "network_unreachable"
	ReasonDNSFailure         = "dns_failure"
	ReasonIOError            = "io_error"
)

// Event is one structured record handed to the logging collaborator.
// Timestamp and Port let a consumer reconstruct ordering; no cross-port
// ordering is guaranteed at emission time.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Port      uint16      `json:"port"`
	Kind      OutcomeKind `json:"kind"`
	Peer      string      `json:"peer,omitempty"`
	Detail    string      `json:"detail,omitempty"`
}

// Outcome is the classified result of one connect probe.
type Outcome struct {
	Port      uint16        `json:"port"`
	Kind      OutcomeKind   `json:"kind"`
	Reason    string        `json:"reason,omitempty"`
	RespTime  time.Duration `json:"response_time"`
	Timestamp time.Time     `json:"timestamp"`
}

// Open reports whether the probed port accepted the connection.
func (o Outcome) Open() bool {
	return o.Kind == KindConnected
}

// ScanReport aggregates every outcome of one scan activation, ordered by
// port. It is complete only once every probe has resolved.
type ScanReport struct {
	Host        string    `json:"host"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Results     []Outcome `json:"results"`
	Open        int       `json:"open"`
	Refused     int       `json:"refused"`
	TimedOut    int       `json:"timed_out"`
	Errored     int       `json:"errored"`
}

// Count tallies one outcome into the report's per-kind counters.
func (r *ScanReport) Count(o Outcome) {
	switch o.Kind {
	case KindConnected:
		r.Open++
	case KindRefused:
		r.Refused++
	case KindTimedOut:
		r.TimedOut++
	default:
		r.Errored++
	}
}
