package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/state"
	simnet "github.com/opd-ai/callcore/testing"
)

type event struct {
	name     string
	nickname string
	err      error
}

type recorder struct {
	NopEventListener
	mu     sync.Mutex
	events []event
	frames [][]byte
}

func (r *recorder) add(name, nickname string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{name: name, nickname: nickname, err: err})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) OnAuthorizationResult(err error, n string) { r.add("auth", n, err) }
func (r *recorder) OnLogoutResult(err error)                  { r.add("logout_result", "", err) }
func (r *recorder) OnStartOutgoingCallResult(err error, n string) {
	r.add("start_result", n, err)
}
func (r *recorder) OnAcceptCallResult(err error, n string) { r.add("accept_result", n, err) }
func (r *recorder) OnIncomingCall(n string)                { r.add("incoming", n, nil) }
func (r *recorder) OnIncomingCallExpired(n string)         { r.add("expired", n, nil) }
func (r *recorder) OnOutgoingCallAccepted(n string)        { r.add("accepted", n, nil) }
func (r *recorder) OnOutgoingCallDeclined(n string)        { r.add("declined", n, nil) }
func (r *recorder) OnOutgoingCallTimeout(n string)         { r.add("timeout", n, nil) }
func (r *recorder) OnCallEndedByRemote(n string)           { r.add("ended", n, nil) }
func (r *recorder) OnCallParticipantConnectionDown(n string) {
	r.add("participant_down", n, nil)
}
func (r *recorder) OnStartScreenSharingResult(err error)    { r.add("screen_result", "", err) }
func (r *recorder) OnIncomingScreenSharingStarted(n string) { r.add("screen_started", n, nil) }
func (r *recorder) OnConnectionRestored()                   { r.add("restored", "", nil) }
func (r *recorder) OnConnectionRestoredAuthorizationNeeded() {
	r.add("auth_needed", "", nil)
}
func (r *recorder) OnIncomingScreen(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

type sink struct {
	mu     sync.Mutex
	frames int
}

func (s *sink) PlayAudio([]byte) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

type fixture struct {
	st  *state.Manager
	ops *operation.Tracker
	reg *prometheus.Registry
	c   *Controller
	rec *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:  state.NewManager(),
		ops: operation.NewTracker(time.Minute),
		reg: prometheus.NewRegistry(),
		rec: &recorder{},
	}
	f.c = NewController(f.st, f.ops, f.reg)
	f.c.SetListener(f.rec)
	return f
}

func (f *fixture) deliver(t *testing.T, typ packet.Type, body interface{}) {
	t.Helper()
	p, err := packet.Encode(typ, body)
	require.NoError(t, err)
	f.c.Handle(p)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestUnknownTypeIsDropped(t *testing.T) {
	f := newFixture(t)
	f.st.SetAuthorized("alice", []byte("t"))
	before := f.st.Snapshot()

	f.c.Handle(packet.New(packet.Type(9999), []byte(`{"nickname":"bob"}`)))
	f.c.Handle(packet.New(packet.TypeAuthorize, nil))

	assert.Equal(t, before, f.st.Snapshot())
	assert.Empty(t, f.rec.all())
	assert.Equal(t, 2.0, counterValue(t, f.reg, "callcore_handler_packets_dropped_total", "unknown_type"))
}

func TestMalformedBodyIsDropped(t *testing.T) {
	f := newFixture(t)
	f.c.Handle(packet.New(packet.TypeIncomingCall, []byte("{not json")))
	f.c.Handle(packet.New(packet.TypeIncomingCall, nil))

	assert.Empty(t, f.st.IncomingCalls())
	assert.Equal(t, 2.0, counterValue(t, f.reg, "callcore_handler_packets_dropped_total", "malformed"))
}

func TestAuthorizationResult(t *testing.T) {
	f := newFixture(t)
	f.ops.Add(operation.New(operation.Authorize, "alice"))

	f.deliver(t, packet.TypeAuthorizationResult, &packet.Result{Status: packet.StatusSuccess, Token: []byte("tok")})

	assert.True(t, f.st.IsAuthorized())
	assert.Equal(t, "alice", f.st.Nickname())
	assert.Equal(t, []byte("tok"), f.st.Token())
	assert.Equal(t, []event{{name: "auth", nickname: "alice"}}, f.rec.all())
	assert.Empty(t, f.ops.Pending())
	assert.Equal(t, 1.0, counterValue(t, f.reg, "callcore_handler_packets_handled_total", "AUTHORIZATION_RESULT"))
}

func TestAuthorizationResultFailure(t *testing.T) {
	f := newFixture(t)
	f.ops.Add(operation.New(operation.Authorize, "alice"))

	f.deliver(t, packet.TypeAuthorizationResult, &packet.Result{Status: packet.StatusTakenNickname})

	assert.False(t, f.st.IsAuthorized())
	events := f.rec.all()
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].err, signaling.ErrTakenNickname)
}

func TestUnsolicitedAuthorizationResultIgnored(t *testing.T) {
	f := newFixture(t)
	f.deliver(t, packet.TypeAuthorizationResult, &packet.Result{Status: packet.StatusSuccess})
	assert.False(t, f.st.IsAuthorized())
	assert.Empty(t, f.rec.all())
}

func TestReconnectResult(t *testing.T) {
	t.Run("success restores session", func(t *testing.T) {
		f := newFixture(t)
		f.st.SetAuthorized("alice", []byte("t"))
		f.st.SetInCallWith("bob")
		f.st.SetConnectionDown(true)

		f.deliver(t, packet.TypeReconnectResult, &packet.Result{Status: packet.StatusSuccess})

		assert.False(t, f.st.IsConnectionDown())
		assert.True(t, f.st.IsAuthorized())
		assert.True(t, f.st.IsActiveCall())
		assert.Equal(t, []event{{name: "restored"}}, f.rec.all())
	})
	t.Run("failure requires authorization", func(t *testing.T) {
		f := newFixture(t)
		f.st.SetAuthorized("alice", []byte("t"))
		f.st.SetConnectionDown(true)

		f.deliver(t, packet.TypeReconnectResult, &packet.Result{Status: packet.StatusNotAuthorized})

		assert.False(t, f.st.IsConnectionDown())
		assert.False(t, f.st.IsAuthorized())
		assert.Equal(t, []event{{name: "auth_needed"}}, f.rec.all())
	})
	t.Run("ignored while connected", func(t *testing.T) {
		f := newFixture(t)
		f.st.SetAuthorized("alice", []byte("t"))
		f.deliver(t, packet.TypeReconnectResult, &packet.Result{Status: packet.StatusFailed})
		assert.True(t, f.st.IsAuthorized())
		assert.Empty(t, f.rec.all())
	})
}

func TestStartOutgoingCallResultFailureClearsTarget(t *testing.T) {
	f := newFixture(t)
	f.st.SetAuthorized("alice", nil)
	f.st.SetOutgoingCall("bob")
	f.ops.Add(operation.New(operation.StartOutgoingCall, "bob"))

	f.deliver(t, packet.TypeStartOutgoingCallResult, &packet.Result{Status: packet.StatusUnexistingUser, Nickname: "bob"})

	assert.False(t, f.st.IsOutgoingCall())
	events := f.rec.all()
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].err, signaling.ErrUnexistingUser)
}

func TestStartOutgoingCallResultSuccessKeepsTarget(t *testing.T) {
	f := newFixture(t)
	f.st.SetOutgoingCall("bob")
	f.ops.Add(operation.New(operation.StartOutgoingCall, "bob"))

	f.deliver(t, packet.TypeStartOutgoingCallResult, &packet.Result{Status: packet.StatusSuccess})

	nick, ok := f.st.OutgoingCall()
	assert.True(t, ok)
	assert.Equal(t, "bob", nick)
	assert.Equal(t, []event{{name: "start_result", nickname: "bob"}}, f.rec.all())
}

func TestAcceptCallResultFailureEndsCall(t *testing.T) {
	f := newFixture(t)
	f.st.SetInCallWith("bob")
	f.st.SetScreenSharing(true)
	f.ops.Add(operation.New(operation.AcceptCall, "bob"))

	f.deliver(t, packet.TypeAcceptCallResult, &packet.Result{Status: packet.StatusFailed, Nickname: "bob"})

	assert.False(t, f.st.IsActiveCall())
	assert.False(t, f.st.IsScreenSharing())
	events := f.rec.all()
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].err, signaling.ErrNetworkError)
}

func TestIncomingCallLifecycle(t *testing.T) {
	f := newFixture(t)
	f.st.SetAuthorized("alice", nil)

	f.deliver(t, packet.TypeIncomingCall, &packet.IncomingCall{Nickname: "bob"})
	f.deliver(t, packet.TypeIncomingCall, &packet.IncomingCall{Nickname: "carol"})
	assert.Equal(t, []string{"bob", "carol"}, f.st.IncomingCalls())

	f.deliver(t, packet.TypeIncomingCallExpired, &packet.NicknameBody{Nickname: "bob"})
	f.deliver(t, packet.TypeIncomingCallExpired, &packet.NicknameBody{Nickname: "dave"})

	assert.Equal(t, []string{"carol"}, f.st.IncomingCalls())
	assert.Equal(t, []event{
		{name: "incoming", nickname: "bob"},
		{name: "incoming", nickname: "carol"},
		{name: "expired", nickname: "bob"},
	}, f.rec.all())
}

func TestIncomingCallFromSelfIgnored(t *testing.T) {
	f := newFixture(t)
	f.st.SetAuthorized("alice", nil)
	f.deliver(t, packet.TypeIncomingCall, &packet.IncomingCall{Nickname: "alice"})
	assert.Empty(t, f.st.IncomingCalls())
}

func TestOutgoingCallAccepted(t *testing.T) {
	f := newFixture(t)
	f.st.SetAuthorized("alice", nil)
	f.st.SetOutgoingCall("bob")
	f.ops.Add(operation.New(operation.StartOutgoingCall, "bob"))

	f.deliver(t, packet.TypeOutgoingCallAccepted, &packet.NicknameBody{Nickname: "bob"})

	partner, ok := f.st.InCallWith()
	assert.True(t, ok)
	assert.Equal(t, "bob", partner)
	assert.False(t, f.st.IsOutgoingCall())
	assert.True(t, f.st.IsActiveCall())
	assert.Empty(t, f.ops.Pending())
	assert.Equal(t, []event{{name: "accepted", nickname: "bob"}}, f.rec.all())
}

func TestStaleOutgoingNotificationsIgnored(t *testing.T) {
	f := newFixture(t)
	f.st.SetOutgoingCall("bob")

	f.deliver(t, packet.TypeOutgoingCallAccepted, &packet.NicknameBody{Nickname: "carol"})
	f.deliver(t, packet.TypeOutgoingCallDeclined, &packet.NicknameBody{Nickname: "carol"})

	nick, _ := f.st.OutgoingCall()
	assert.Equal(t, "bob", nick)
	assert.False(t, f.st.IsActiveCall())
	assert.Empty(t, f.rec.all())
	assert.Equal(t, 2.0, counterValue(t, f.reg, "callcore_handler_packets_dropped_total", "stale"))
}

func TestOutgoingCallDeclinedAndTimeout(t *testing.T) {
	f := newFixture(t)
	f.st.SetOutgoingCall("bob")
	f.deliver(t, packet.TypeOutgoingCallDeclined, &packet.NicknameBody{Nickname: "bob"})
	assert.False(t, f.st.IsOutgoingCall())

	f.st.SetOutgoingCall("carol")
	f.deliver(t, packet.TypeOutgoingCallTimeout, &packet.NicknameBody{Nickname: "carol"})
	assert.False(t, f.st.IsOutgoingCall())

	assert.Equal(t, []event{
		{name: "declined", nickname: "bob"},
		{name: "timeout", nickname: "carol"},
	}, f.rec.all())
}

func TestCallEndedByRemote(t *testing.T) {
	f := newFixture(t)
	f.st.SetInCallWith("bob")
	f.st.SetViewingRemoteCamera(true)

	f.deliver(t, packet.TypeCallEndedByRemote, &packet.NicknameBody{Nickname: "carol"})
	assert.True(t, f.st.IsActiveCall())

	f.deliver(t, packet.TypeCallEndedByRemote, &packet.NicknameBody{Nickname: "bob"})
	assert.False(t, f.st.IsActiveCall())
	assert.False(t, f.st.IsViewingRemoteCamera())
	assert.Equal(t, []event{{name: "ended", nickname: "bob"}}, f.rec.all())
}

func TestParticipantConnectionDown(t *testing.T) {
	f := newFixture(t)
	f.st.SetInCallWith("bob")
	f.deliver(t, packet.TypeCallParticipantConnectionDown, &packet.NicknameBody{Nickname: "bob"})
	assert.Equal(t, []event{{name: "participant_down", nickname: "bob"}}, f.rec.all())
	assert.True(t, f.st.IsActiveCall())
}

func TestScreenSharingResult(t *testing.T) {
	f := newFixture(t)
	f.st.SetInCallWith("bob")
	f.ops.Add(operation.New(operation.StartScreenSharing, "bob"))

	f.deliver(t, packet.TypeStartScreenSharingResult, &packet.Result{Status: packet.StatusSuccess})

	assert.True(t, f.st.IsScreenSharing())
	assert.Equal(t, []event{{name: "screen_result"}}, f.rec.all())
}

func TestScreenSharingResultAfterCallEnded(t *testing.T) {
	f := newFixture(t)
	f.ops.Add(operation.New(operation.StartScreenSharing, "bob"))

	f.deliver(t, packet.TypeStartScreenSharingResult, &packet.Result{Status: packet.StatusSuccess})

	assert.False(t, f.st.IsScreenSharing())
}

func TestRemoteScreenAndMediaRouting(t *testing.T) {
	f := newFixture(t)
	f.st.SetInCallWith("bob")

	f.c.HandleMedia(packet.New(packet.TypeScreen, []byte{1}))
	assert.Empty(t, f.rec.frames, "frames before the remote starts sharing are dropped")

	f.deliver(t, packet.TypeIncomingScreenSharingStarted, &packet.NicknameBody{Nickname: "bob"})
	assert.True(t, f.st.IsViewingRemoteScreen())

	f.c.HandleMedia(packet.New(packet.TypeScreen, []byte{2}))
	require.Len(t, f.rec.frames, 1)
	assert.Equal(t, []byte{2}, f.rec.frames[0])

	f.deliver(t, packet.TypeIncomingScreenSharingStopped, &packet.NicknameBody{Nickname: "bob"})
	assert.False(t, f.st.IsViewingRemoteScreen())
}

func TestVoiceRouting(t *testing.T) {
	f := newFixture(t)
	s := &sink{}
	f.c.SetAudioSink(s)

	f.c.HandleMedia(packet.New(packet.TypeVoice, []byte{1, 2}))
	assert.Equal(t, 0, s.frames, "voice outside a call is dropped")

	f.st.SetInCallWith("bob")
	f.c.HandleMedia(packet.New(packet.TypeVoice, []byte{1, 2}))
	f.c.HandleMedia(packet.New(packet.TypeVoice, nil))
	assert.Equal(t, 1, s.frames)
}

func TestEndToEndOutgoingCallAccepted(t *testing.T) {
	st := state.NewManager()
	ops := operation.NewTracker(time.Minute)
	c := NewController(st, ops, nil)
	rec := &recorder{}
	c.SetListener(rec)

	st.SetAuthorized("alice", []byte("t"))
	require.True(t, st.SetOutgoingCall("B"))
	ops.Add(operation.New(operation.StartOutgoingCall, "B"))

	nick, _ := st.OutgoingCall()
	assert.Equal(t, "B", nick)

	p, err := packet.Encode(packet.TypeOutgoingCallAccepted, &packet.NicknameBody{Nickname: "B"})
	require.NoError(t, err)
	c.Handle(p)

	partner, _ := st.InCallWith()
	assert.Equal(t, "B", partner)
	assert.False(t, st.IsOutgoingCall())
	assert.True(t, st.IsActiveCall())
	assert.Equal(t, []event{{name: "accepted", nickname: "B"}}, rec.all())
}

func TestMetricsRegistrationIsShared(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewController(state.NewManager(), operation.NewTracker(time.Minute), reg)
	b := NewController(state.NewManager(), operation.NewTracker(time.Minute), reg)

	a.Handle(packet.New(packet.Type(7777), nil))
	b.Handle(packet.New(packet.Type(7777), nil))

	assert.Equal(t, 2.0, counterValue(t, reg, "callcore_handler_packets_dropped_total", "unknown_type"))
}

func TestLogoutResult(t *testing.T) {
	t.Run("rejection is reported after the optimistic reset", func(t *testing.T) {
		f := newFixture(t)
		f.ops.Add(operation.New(operation.Logout, "alice"))

		f.deliver(t, packet.TypeLogoutResult, &packet.Result{Status: packet.StatusNotAuthorized})

		events := f.rec.all()
		require.Len(t, events, 1)
		assert.Equal(t, "logout_result", events[0].name)
		assert.ErrorIs(t, events[0].err, signaling.ErrNotAuthorized)
		assert.False(t, f.st.IsAuthorized())
		assert.Empty(t, f.ops.Pending())
	})
	t.Run("acknowledgment", func(t *testing.T) {
		f := newFixture(t)
		f.ops.Add(operation.New(operation.Logout, "alice"))

		f.deliver(t, packet.TypeLogoutResult, &packet.Result{Status: packet.StatusSuccess})

		assert.Equal(t, []event{{name: "logout_result"}}, f.rec.all())
	})
	t.Run("unsolicited", func(t *testing.T) {
		f := newFixture(t)
		f.deliver(t, packet.TypeLogoutResult, &packet.Result{Status: packet.StatusFailed})
		assert.Empty(t, f.rec.all())
	})
}

// serverFixture wires the signaling services to a controller through a
// simulated network whose server answers from inside SendPacket.
type serverFixture struct {
	*fixture
	net   *simnet.SimulatedNetwork
	auth  *signaling.AuthorizationService
	calls *signaling.CallService
}

type readyKeys struct{}

func (readyKeys) HasKeys() bool                    { return true }
func (readyKeys) GenerateAsync()                   {}
func (readyKeys) AwaitKeys(_ context.Context) error { return nil }
func (readyKeys) PublicKey() []byte                { return []byte{1} }

func newServerFixture(t *testing.T, answer func(rec simnet.DeliveryRecord) (packet.Type, interface{})) *serverFixture {
	t.Helper()
	f := &serverFixture{fixture: newFixture(t), net: simnet.NewSimulatedNetwork(40000)}
	f.net.SetHandlers(interfaces.Handlers{Packet: f.c.Handle})
	f.net.OnSend(func(rec simnet.DeliveryRecord) {
		if typ, body := answer(rec); body != nil {
			require.NoError(t, f.net.Deliver(typ, body))
		}
	})
	f.auth = signaling.NewAuthorizationService(f.st, f.ops, readyKeys{}, f.net, f.net)
	f.calls = signaling.NewCallService(f.st, f.ops, f.net)
	return f
}

func TestResultDispatchedBeforeSendReturns(t *testing.T) {
	t.Run("authorization", func(t *testing.T) {
		f := newServerFixture(t, func(rec simnet.DeliveryRecord) (packet.Type, interface{}) {
			if rec.Type != packet.TypeAuthorize {
				return 0, nil
			}
			return packet.TypeAuthorizationResult, &packet.Result{Status: packet.StatusSuccess, Token: []byte("tok")}
		})

		require.NoError(t, f.auth.Authorize("alice"))

		assert.True(t, f.st.IsAuthorized())
		assert.Empty(t, f.ops.Pending())
		assert.Equal(t, []event{{name: "auth", nickname: "alice"}}, f.rec.all())
	})
	t.Run("outgoing call accepted", func(t *testing.T) {
		f := newServerFixture(t, func(rec simnet.DeliveryRecord) (packet.Type, interface{}) {
			if rec.Type != packet.TypeStartOutgoingCall {
				return 0, nil
			}
			return packet.TypeOutgoingCallAccepted, &packet.NicknameBody{Nickname: "bob"}
		})
		f.st.SetAuthorized("alice", []byte("tok"))

		require.NoError(t, f.calls.StartOutgoingCall("bob"))

		partner, ok := f.st.InCallWith()
		assert.True(t, ok)
		assert.Equal(t, "bob", partner)
		assert.False(t, f.st.IsOutgoingCall())
		assert.Empty(t, f.ops.Pending())
		assert.Equal(t, []event{{name: "accepted", nickname: "bob"}}, f.rec.all())
	})
	t.Run("start call rejected", func(t *testing.T) {
		f := newServerFixture(t, func(rec simnet.DeliveryRecord) (packet.Type, interface{}) {
			if rec.Type != packet.TypeStartOutgoingCall {
				return 0, nil
			}
			return packet.TypeStartOutgoingCallResult, &packet.Result{Status: packet.StatusUnexistingUser, Nickname: "bob"}
		})
		f.st.SetAuthorized("alice", []byte("tok"))

		require.NoError(t, f.calls.StartOutgoingCall("bob"))

		assert.False(t, f.st.IsOutgoingCall())
		events := f.rec.all()
		require.Len(t, events, 1)
		assert.ErrorIs(t, events[0].err, signaling.ErrUnexistingUser)
	})
}
