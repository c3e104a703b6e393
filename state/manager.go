// Package state holds the authoritative session state of the call client.
//
// Manager is the single source of truth for authorization, call and media
// flags. It is read from the audio callback goroutine, the reconnection
// goroutine and the signaling goroutine at the same time, so every method is
// safe for concurrent use. Boolean flags that are read on hot paths are kept
// in atomics; multi-field transitions are serialized by one mutex so that no
// reader ever observes a half-applied transition.
package state

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Snapshot is a consistent copy of the whole client state.
type Snapshot struct {
	IsAuthorized          bool
	IsConnectionDown      bool
	Nickname              string
	Token                 []byte
	OutgoingCallNickname  string
	InCallWithNickname    string
	IncomingCalls         []string
	IsScreenSharing       bool
	IsCameraSharing       bool
	IsViewingRemoteScreen bool
	IsViewingRemoteCamera bool
	IsMicrophoneMuted     bool
	IsSpeakerMuted        bool
}

// Manager owns the client state. The zero value is not usable; use NewManager.
type Manager struct {
	authorized      atomic.Bool
	connectionDown  atomic.Bool
	microphoneMuted atomic.Bool
	speakerMuted    atomic.Bool
	screenSharing   atomic.Bool
	cameraSharing   atomic.Bool
	viewingScreen   atomic.Bool
	viewingCamera   atomic.Bool

	mu            sync.RWMutex
	nickname      string
	token         []byte
	outgoingCall  string
	inCallWith    string
	incomingCalls map[string]struct{}
}

// NewManager creates a manager with default (logged out, connected) state.
func NewManager() *Manager {
	return &Manager{
		incomingCalls: make(map[string]struct{}),
	}
}

// IsAuthorized reports whether the session is authorized.
func (m *Manager) IsAuthorized() bool {
	return m.authorized.Load()
}

// IsConnectionDown reports whether the transport is currently unreachable.
func (m *Manager) IsConnectionDown() bool {
	return m.connectionDown.Load()
}

// SetConnectionDown updates the connection-down flag.
func (m *Manager) SetConnectionDown(down bool) {
	if m.connectionDown.Swap(down) != down {
		logrus.WithFields(logrus.Fields{
			"function":        "Manager.SetConnectionDown",
			"connection_down": down,
		}).Debug("Connection state changed")
	}
}

// IsActiveCall reports whether a call partner is set.
func (m *Manager) IsActiveCall() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inCallWith != ""
}

// IsOutgoingCall reports whether an outgoing call is ringing.
func (m *Manager) IsOutgoingCall() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outgoingCall != ""
}

// Nickname returns the local nickname, empty when not authorized.
func (m *Manager) Nickname() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nickname
}

// Token returns a copy of the session token.
func (m *Manager) Token() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.token...)
}

// Credentials returns nickname and token together with the authorization flag,
// read under one lock so the three values always belong to the same session.
func (m *Manager) Credentials() (nickname string, token []byte, authorized bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nickname, append([]byte(nil), m.token...), m.authorized.Load()
}

// SetAuthorized records a successful authorization.
// The nickname is stored before the flag is raised, so IsAuthorized never
// reports true while the nickname is still empty.
func (m *Manager) SetAuthorized(nickname string, token []byte) {
	m.mu.Lock()
	m.nickname = nickname
	m.token = append([]byte(nil), token...)
	m.authorized.Store(true)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.SetAuthorized",
		"nickname": nickname,
	}).Info("Session authorized")
}

// Reset clears nickname, token and all call state, as on logout.
// The connection-down flag is left untouched.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.authorized.Store(false)
	m.nickname = ""
	m.token = nil
	m.outgoingCall = ""
	m.inCallWith = ""
	m.incomingCalls = make(map[string]struct{})
	m.clearMediaFlags()
	m.mu.Unlock()

	m.microphoneMuted.Store(false)
	m.speakerMuted.Store(false)

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Reset",
	}).Info("Client state reset")
}

// OutgoingCall returns the nickname being called, if any.
func (m *Manager) OutgoingCall() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outgoingCall, m.outgoingCall != ""
}

// InCallWith returns the current call partner, if any.
func (m *Manager) InCallWith() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inCallWith, m.inCallWith != ""
}

// SetOutgoingCall records a ringing outgoing call.
// It refuses, returning false, while a call is active.
func (m *Manager) SetOutgoingCall(nickname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inCallWith != "" {
		return false
	}
	m.outgoingCall = nickname
	return true
}

// ClearOutgoingCall forgets the outgoing call target.
func (m *Manager) ClearOutgoingCall() {
	m.mu.Lock()
	m.outgoingCall = ""
	m.mu.Unlock()
}

// ClearOutgoingCallIf clears the outgoing target only when it matches nickname.
// It reports whether anything was cleared.
func (m *Manager) ClearOutgoingCallIf(nickname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.outgoingCall == "" || m.outgoingCall != nickname {
		return false
	}
	m.outgoingCall = ""
	return true
}

// SetInCallWith makes nickname the call partner, clears the outgoing target
// and removes any pending offer from the same nickname in one transition.
func (m *Manager) SetInCallWith(nickname string) {
	m.mu.Lock()
	m.inCallWith = nickname
	m.outgoingCall = ""
	delete(m.incomingCalls, nickname)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.SetInCallWith",
		"nickname": nickname,
	}).Debug("Call became active")
}

// ChangeStateOnEndCall clears the call partner and every sharing or viewing flag.
func (m *Manager) ChangeStateOnEndCall() {
	m.mu.Lock()
	m.inCallWith = ""
	m.clearMediaFlags()
	m.mu.Unlock()
}

func (m *Manager) clearMediaFlags() {
	m.screenSharing.Store(false)
	m.cameraSharing.Store(false)
	m.viewingScreen.Store(false)
	m.viewingCamera.Store(false)
}

// AddIncomingCall records a pending incoming offer.
func (m *Manager) AddIncomingCall(nickname string) {
	m.mu.Lock()
	m.incomingCalls[nickname] = struct{}{}
	m.mu.Unlock()
}

// RemoveIncomingCall forgets a pending incoming offer and reports whether it existed.
func (m *Manager) RemoveIncomingCall(nickname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.incomingCalls[nickname]
	delete(m.incomingCalls, nickname)
	return ok
}

// HasIncomingCall reports whether nickname has a pending offer to us.
func (m *Manager) HasIncomingCall(nickname string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.incomingCalls[nickname]
	return ok
}

// IncomingCalls returns the pending offers sorted by nickname.
func (m *Manager) IncomingCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.incomingCallsLocked()
}

func (m *Manager) incomingCallsLocked() []string {
	calls := make([]string, 0, len(m.incomingCalls))
	for nickname := range m.incomingCalls {
		calls = append(calls, nickname)
	}
	sort.Strings(calls)
	return calls
}

// IsScreenSharing reports whether the local screen is being shared.
func (m *Manager) IsScreenSharing() bool { return m.screenSharing.Load() }

// SetScreenSharing updates the local screen sharing flag.
func (m *Manager) SetScreenSharing(v bool) { m.screenSharing.Store(v) }

// IsCameraSharing reports whether the local camera is being shared.
func (m *Manager) IsCameraSharing() bool { return m.cameraSharing.Load() }

// SetCameraSharing updates the local camera sharing flag.
func (m *Manager) SetCameraSharing(v bool) { m.cameraSharing.Store(v) }

// IsViewingRemoteScreen reports whether the remote peer shares its screen.
func (m *Manager) IsViewingRemoteScreen() bool { return m.viewingScreen.Load() }

// SetViewingRemoteScreen updates the remote screen flag.
func (m *Manager) SetViewingRemoteScreen(v bool) { m.viewingScreen.Store(v) }

// IsViewingRemoteCamera reports whether the remote peer shares its camera.
func (m *Manager) IsViewingRemoteCamera() bool { return m.viewingCamera.Load() }

// SetViewingRemoteCamera updates the remote camera flag.
func (m *Manager) SetViewingRemoteCamera(v bool) { m.viewingCamera.Store(v) }

// IsMicrophoneMuted reports the microphone mute flag.
func (m *Manager) IsMicrophoneMuted() bool { return m.microphoneMuted.Load() }

// SetMicrophoneMuted updates the microphone mute flag.
func (m *Manager) SetMicrophoneMuted(v bool) { m.microphoneMuted.Store(v) }

// IsSpeakerMuted reports the speaker mute flag.
func (m *Manager) IsSpeakerMuted() bool { return m.speakerMuted.Load() }

// SetSpeakerMuted updates the speaker mute flag.
func (m *Manager) SetSpeakerMuted(v bool) { m.speakerMuted.Store(v) }

// Snapshot returns a consistent copy of the state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		IsAuthorized:          m.authorized.Load(),
		IsConnectionDown:      m.connectionDown.Load(),
		Nickname:              m.nickname,
		Token:                 append([]byte(nil), m.token...),
		OutgoingCallNickname:  m.outgoingCall,
		InCallWithNickname:    m.inCallWith,
		IncomingCalls:         m.incomingCallsLocked(),
		IsScreenSharing:       m.screenSharing.Load(),
		IsCameraSharing:       m.cameraSharing.Load(),
		IsViewingRemoteScreen: m.viewingScreen.Load(),
		IsViewingRemoteCamera: m.viewingCamera.Load(),
		IsMicrophoneMuted:     m.microphoneMuted.Load(),
		IsSpeakerMuted:        m.speakerMuted.Load(),
	}
}
