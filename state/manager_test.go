package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager()

	assert.False(t, m.IsAuthorized())
	assert.False(t, m.IsConnectionDown())
	assert.False(t, m.IsActiveCall())
	assert.False(t, m.IsOutgoingCall())
	assert.Empty(t, m.Nickname())
	assert.Empty(t, m.IncomingCalls())
}

func TestAuthorizeAndReset(t *testing.T) {
	m := NewManager()
	m.SetAuthorized("alice", []byte("token"))

	nickname, token, authorized := m.Credentials()
	assert.True(t, authorized)
	assert.Equal(t, "alice", nickname)
	assert.Equal(t, []byte("token"), token)

	m.SetConnectionDown(true)
	m.SetOutgoingCall("bob")
	m.AddIncomingCall("carol")
	m.SetMicrophoneMuted(true)

	m.Reset()

	assert.False(t, m.IsAuthorized())
	assert.Empty(t, m.Nickname())
	assert.Empty(t, m.Token())
	assert.False(t, m.IsOutgoingCall())
	assert.Empty(t, m.IncomingCalls())
	assert.False(t, m.IsMicrophoneMuted())
	assert.True(t, m.IsConnectionDown(), "reset must not touch the connection flag")
}

func TestTokenIsCopied(t *testing.T) {
	m := NewManager()
	token := []byte{1, 2, 3}
	m.SetAuthorized("alice", token)

	token[0] = 9
	got := m.Token()
	assert.Equal(t, byte(1), got[0])

	got[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, m.Token())
}

func TestOutgoingAndActiveCallAreExclusive(t *testing.T) {
	m := NewManager()

	require.True(t, m.SetOutgoingCall("bob"))
	assert.True(t, m.IsOutgoingCall())

	m.AddIncomingCall("bob")
	m.SetInCallWith("bob")

	partner, ok := m.InCallWith()
	assert.True(t, ok)
	assert.Equal(t, "bob", partner)
	assert.False(t, m.IsOutgoingCall(), "entering a call clears the outgoing target")
	assert.False(t, m.HasIncomingCall("bob"), "entering a call consumes the offer")

	assert.False(t, m.SetOutgoingCall("carol"), "cannot ring while in a call")
	assert.False(t, m.IsOutgoingCall())
}

func TestClearOutgoingCallIf(t *testing.T) {
	m := NewManager()
	m.SetOutgoingCall("bob")

	assert.False(t, m.ClearOutgoingCallIf("carol"))
	assert.True(t, m.IsOutgoingCall())
	assert.True(t, m.ClearOutgoingCallIf("bob"))
	assert.False(t, m.IsOutgoingCall())
	assert.False(t, m.ClearOutgoingCallIf("bob"))
}

func TestChangeStateOnEndCall(t *testing.T) {
	m := NewManager()
	m.SetInCallWith("bob")
	m.SetScreenSharing(true)
	m.SetCameraSharing(true)
	m.SetViewingRemoteScreen(true)
	m.SetViewingRemoteCamera(true)
	m.SetSpeakerMuted(true)

	m.ChangeStateOnEndCall()

	s := m.Snapshot()
	assert.Empty(t, s.InCallWithNickname)
	assert.False(t, s.IsScreenSharing)
	assert.False(t, s.IsCameraSharing)
	assert.False(t, s.IsViewingRemoteScreen)
	assert.False(t, s.IsViewingRemoteCamera)
	assert.True(t, s.IsSpeakerMuted, "mute preferences survive the end of a call")
}

func TestIncomingCalls(t *testing.T) {
	m := NewManager()
	m.AddIncomingCall("zed")
	m.AddIncomingCall("amy")
	m.AddIncomingCall("amy")

	assert.Equal(t, []string{"amy", "zed"}, m.IncomingCalls())
	assert.True(t, m.RemoveIncomingCall("amy"))
	assert.False(t, m.RemoveIncomingCall("amy"))
	assert.Equal(t, []string{"zed"}, m.Snapshot().IncomingCalls)
}

// TestConcurrentAuthorizationInvariant checks that no reader ever sees an
// authorized session without a nickname while writers flip the state.
func TestConcurrentAuthorizationInvariant(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if nickname, _, authorized := m.Credentials(); authorized && nickname == "" {
					t.Error("observed authorized state with empty nickname")
					return
				}
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		m.SetAuthorized("alice", []byte{byte(i)})
		m.Reset()
	}
	close(stop)
	wg.Wait()
}
