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

package listen

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graywatch/otsentinel/pkg/logger"
	"github.com/graywatch/otsentinel/pkg/models"
	"github.com/graywatch/otsentinel/pkg/portspec"
)

// recordingEmitter captures emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingEmitter) Emit(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recordingEmitter) byKind(kind models.OutcomeKind) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Event

	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}

	return out
}

func (r *recordingEmitter) waitFor(t *testing.T, kind models.OutcomeKind, n int) []models.Event {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.byKind(kind); len(got) >= n {
			return got
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %d %q events", n, kind)

	return nil
}

// freePort grabs an ephemeral port and releases it for the supervisor to
// rebind. The small window between close and rebind is acceptable on
// loopback in CI.
func freePort(t *testing.T) uint16 {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	return port
}

func setOf(t *testing.T, ports ...uint16) portspec.PortSet {
	t.Helper()

	spec := ""
	for i, p := range ports {
		if i > 0 {
			spec += ","
		}

		spec += fmt.Sprintf("%d", p)
	}

	set, err := portspec.Parse(spec)
	require.NoError(t, err)

	return set
}

func TestSupervisor_AcceptEmitsAndCloses(t *testing.T) {
	port := freePort(t)
	emitter := &recordingEmitter{}

	sup := NewSupervisor(setOf(t, port), 100*time.Millisecond, emitter, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.Equal(t, 1, sup.Start(ctx))

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	got := emitter.waitFor(t, models.KindConnected, 1)
	assert.Equal(t, port, got[0].Port)
	assert.NotEmpty(t, got[0].Peer)
	assert.False(t, got[0].Timestamp.IsZero())

	// The supervisor closes accepted connections immediately; the peer
	// sees EOF on its next read.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "accepted connection must be closed without payload")

	cancel()
	sup.Wait()
}

func TestSupervisor_BindFailureIsolation(t *testing.T) {
	// Occupy one port so the supervisor's bind fails on it.
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	busyPort := uint16(taken.Addr().(*net.TCPAddr).Port)
	goodPort := freePort(t)

	emitter := &recordingEmitter{}
	sup := NewSupervisor(setOf(t, busyPort, goodPort), 100*time.Millisecond, emitter, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bound := sup.Start(ctx)
	assert.Equal(t, 1, bound, "one bad port must not halt the rest of the set")
	assert.Equal(t, []uint16{goodPort}, sup.BoundPorts())

	failed := emitter.byKind(models.KindBindFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, busyPort, failed[0].Port)
	assert.NotEmpty(t, failed[0].Detail)

	// The surviving port still accepts.
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", goodPort))
	require.NoError(t, err)
	defer conn.Close()

	emitter.waitFor(t, models.KindConnected, 1)

	cancel()
	sup.Wait()
}

func TestSupervisor_ShutdownReleasesSockets(t *testing.T) {
	ports := []uint16{freePort(t), freePort(t)}
	timeout := 100 * time.Millisecond

	emitter := &recordingEmitter{}
	sup := NewSupervisor(setOf(t, ports...), timeout, emitter, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.Equal(t, 2, sup.Start(ctx))

	start := time.Now()

	cancel()
	sup.Wait()

	// Every task observes cancellation within one timeout interval.
	assert.Less(t, time.Since(start), timeout+time.Second)

	// Sockets are released: the ports can be bound again.
	for _, port := range ports {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		require.NoError(t, err, "port %d was not released", port)
		_ = ln.Close()
	}
}

func TestSupervisor_PeerHook(t *testing.T) {
	port := freePort(t)
	emitter := &recordingEmitter{}

	peers := make(chan string, 1)
	hook := func(peer net.Addr) {
		select {
		case peers <- peer.String():
		default:
		}
	}

	sup := NewSupervisor(setOf(t, port), 100*time.Millisecond, emitter, logger.NewTestLogger(), WithPeerHook(hook))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.Equal(t, 1, sup.Start(ctx))

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	select {
	case peer := <-peers:
		assert.Contains(t, peer, "127.0.0.1")
	case <-time.After(3 * time.Second):
		t.Fatal("peer hook was not invoked")
	}

	cancel()
	sup.Wait()
}
