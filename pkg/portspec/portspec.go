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

// Package portspec parses textual port specifications into canonical port sets.
package portspec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	minPort = 1
	maxPort = 65535
)

// ErrEmptySpec indicates an empty port specification.
var ErrEmptySpec = errors.New("empty port specification")

// InvalidPortError indicates a token that is not a valid port number.
type InvalidPortError struct {
	Token string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid port %q: must be an integer in [%d, %d]", e.Token, minPort, maxPort)
}

// InvalidRangeError indicates a malformed or inverted port range token.
type InvalidRangeError struct {
	Token string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid port range %q", e.Token)
}

// PortSet is an ordered set of distinct port numbers. It is immutable once
// built; callers share it read-only across goroutines.
type PortSet struct {
	ports []uint16
}

// Parse expands a comma-separated specification of ports and inclusive
// low-high ranges into a deduplicated, ascending PortSet.
//
// The parse is all-or-nothing: one bad token fails the whole spec. Partial
// configuration is worse than no configuration in a monitoring tool, so
// tokens are never silently skipped.
func Parse(spec string) (PortSet, error) {
	if strings.TrimSpace(spec) == "" {
		return PortSet{}, ErrEmptySpec
	}

	seen := make(map[uint16]struct{})

	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)

		if token == "" {
			return PortSet{}, &InvalidPortError{Token: token}
		}

		if strings.Contains(token, "-") {
			if err := expandRange(token, seen); err != nil {
				return PortSet{}, err
			}

			continue
		}

		port, err := parsePort(token)
		if err != nil {
			return PortSet{}, &InvalidPortError{Token: token}
		}

		seen[port] = struct{}{}
	}

	ports := make([]uint16, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })

	return PortSet{ports: ports}, nil
}

func expandRange(token string, seen map[uint16]struct{}) error {
	low, high, found := strings.Cut(token, "-")
	if !found {
		return &InvalidRangeError{Token: token}
	}

	lo, err := parsePort(strings.TrimSpace(low))
	if err != nil {
		return &InvalidRangeError{Token: token}
	}

	hi, err := parsePort(strings.TrimSpace(high))
	if err != nil {
		return &InvalidRangeError{Token: token}
	}

	if lo > hi {
		return &InvalidRangeError{Token: token}
	}

	for p := uint32(lo); p <= uint32(hi); p++ {
		seen[uint16(p)] = struct{}{}
	}

	return nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}

	if n < minPort {
		return 0, strconv.ErrRange
	}

	return uint16(n), nil
}

// Ports returns the set in ascending order. The returned slice is a copy.
func (s PortSet) Ports() []uint16 {
	out := make([]uint16, len(s.ports))
	copy(out, s.ports)

	return out
}

// Len returns the number of ports in the set.
func (s PortSet) Len() int {
	return len(s.ports)
}

// Contains reports whether port is a member of the set.
func (s PortSet) Contains(port uint16) bool {
	i := sort.Search(len(s.ports), func(i int) bool { return s.ports[i] >= port })

	return i < len(s.ports) && s.ports[i] == port
}

// Min returns the lowest port in the set, or 0 for an empty set.
func (s PortSet) Min() uint16 {
	if len(s.ports) == 0 {
		return 0
	}

	return s.ports[0]
}

func (s PortSet) String() string {
	parts := make([]string, len(s.ports))
	for i, p := range s.ports {
		parts[i] = strconv.Itoa(int(p))
	}

	return strings.Join(parts, ",")
}
