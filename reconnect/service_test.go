package reconnect

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/state"
	simnet "github.com/opd-ai/callcore/testing"
)

func newService(t *testing.T, st *state.Manager, net *simnet.SimulatedNetwork, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithIdleInterval(5 * time.Millisecond), WithRetryDelay(time.Millisecond)}, opts...)
	s := NewService(st, net, net, net, opts...)
	t.Cleanup(s.Close)
	return s
}

func TestIdleServiceNeverAttempts(t *testing.T) {
	st := state.NewManager()
	st.SetConnectionDown(true)
	net := simnet.NewSimulatedNetwork(4000)
	s := newService(t, st, net)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, net.Attempts())
	assert.False(t, s.IsReconnecting())
}

func TestReconnectAuthorizedSessionSendsToken(t *testing.T) {
	st := state.NewManager()
	st.SetAuthorized("alice", []byte("tok"))
	st.SetConnectionDown(true)
	net := simnet.NewSimulatedNetwork(4000)
	net.SetAttemptResult(true)
	s := newService(t, st, net)

	// The media socket may have been rebound while the connection was down.
	net.SetUDPPort(4001)
	s.StartReconnectionAttempts()

	require.Eventually(t, func() bool {
		return len(net.Sent(packet.TypeReconnect)) == 1
	}, time.Second, time.Millisecond)

	var req packet.ReconnectRequest
	require.NoError(t, packet.DecodeBody(net.Sent(packet.TypeReconnect)[0].Body, &req))
	assert.Equal(t, "alice", req.Nickname)
	assert.Equal(t, []byte("tok"), req.Token)
	assert.Equal(t, uint16(4001), req.UDPPort)
	assert.Equal(t, packet.ProtocolVersion, req.Version)
	assert.False(t, s.IsReconnecting())
	assert.True(t, st.IsConnectionDown(), "cleared only by the reconnect result")
}

func TestReconnectUnauthorizedNeedsAuthorization(t *testing.T) {
	st := state.NewManager()
	st.SetConnectionDown(true)
	net := simnet.NewSimulatedNetwork(4000)
	var fired atomic.Int32
	s := newService(t, st, net, WithAuthorizationNeeded(func() { fired.Add(1) }))

	s.StartReconnectionAttempts()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load() > 0, "no success yet")
	assert.True(t, st.IsConnectionDown())

	net.SetAttemptResult(true)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, st.IsConnectionDown())
	assert.Empty(t, net.Sent(packet.TypeReconnect))
	assert.GreaterOrEqual(t, s.Attempts(), int64(2))
}

func TestReconnectRetriesFailedSend(t *testing.T) {
	st := state.NewManager()
	st.SetAuthorized("alice", []byte("tok"))
	st.SetConnectionDown(true)
	net := simnet.NewSimulatedNetwork(4000)
	net.SetAttemptResult(true)
	net.SetFailure(simnet.ErrSimulatedFailure)
	s := newService(t, st, net)

	s.StartReconnectionAttempts()
	require.Eventually(t, func() bool { return s.Attempts() >= 3 }, time.Second, time.Millisecond)

	net.SetFailure(nil)
	require.Eventually(t, func() bool {
		return len(net.Sent(packet.TypeReconnect)) == 1
	}, time.Second, time.Millisecond)
}

func TestStopWhenRestoredElsewhere(t *testing.T) {
	st := state.NewManager()
	st.SetConnectionDown(true)
	net := simnet.NewSimulatedNetwork(4000)
	s := newService(t, st, net)

	s.StartReconnectionAttempts()
	require.Eventually(t, func() bool { return net.Attempts() > 0 }, time.Second, time.Millisecond)

	st.SetConnectionDown(false)
	require.Eventually(t, func() bool { return !s.IsReconnecting() }, time.Second, time.Millisecond)
}

func TestStopReconnectionAttempts(t *testing.T) {
	st := state.NewManager()
	st.SetConnectionDown(true)
	net := simnet.NewSimulatedNetwork(4000)
	s := newService(t, st, net)

	s.StartReconnectionAttempts()
	require.Eventually(t, func() bool { return net.Attempts() > 0 }, time.Second, time.Millisecond)
	s.StopReconnectionAttempts()

	time.Sleep(10 * time.Millisecond)
	settled := net.Attempts()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, net.Attempts())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewService(state.NewManager(), simnet.NewSimulatedNetwork(1), simnet.NewSimulatedNetwork(1),
		simnet.NewSimulatedNetwork(1), WithIdleInterval(time.Hour))

	done := make(chan struct{})
	go func() {
		s.Close()
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
