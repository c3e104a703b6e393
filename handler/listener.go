package handler

// EventListener receives the asynchronous outcomes of signaling operations and
// every peer-driven event. It is implemented by the GUI layer and invoked on
// the network dispatch goroutine, never on the audio thread.
//
// A nil error in a *Result callback means the server accepted the request.
type EventListener interface {
	OnAuthorizationResult(err error, nickname string)
	OnLogoutResult(err error)
	OnStartOutgoingCallResult(err error, nickname string)
	OnAcceptCallResult(err error, nickname string)

	OnIncomingCall(nickname string)
	OnIncomingCallExpired(nickname string)
	OnOutgoingCallAccepted(nickname string)
	OnOutgoingCallDeclined(nickname string)
	OnOutgoingCallTimeout(nickname string)
	OnCallEndedByRemote(nickname string)
	OnCallParticipantConnectionDown(nickname string)
	OnCallParticipantConnectionRestored(nickname string)

	OnStartScreenSharingResult(err error)
	OnIncomingScreenSharingStarted(nickname string)
	OnIncomingScreenSharingStopped(nickname string)
	OnStartCameraSharingResult(err error)
	OnIncomingCameraSharingStarted(nickname string)
	OnIncomingCameraSharingStopped(nickname string)
	OnIncomingScreen(frame []byte)
	OnIncomingCamera(frame []byte)

	OnConnectionDown()
	OnConnectionRestored()
	OnConnectionRestoredAuthorizationNeeded()
}

// NopEventListener implements EventListener with no-ops. Embed it to
// implement only the callbacks you need.
type NopEventListener struct{}

var _ EventListener = NopEventListener{}

func (NopEventListener) OnAuthorizationResult(error, string)        {}
func (NopEventListener) OnLogoutResult(error)                       {}
func (NopEventListener) OnStartOutgoingCallResult(error, string)    {}
func (NopEventListener) OnAcceptCallResult(error, string)           {}
func (NopEventListener) OnIncomingCall(string)                      {}
func (NopEventListener) OnIncomingCallExpired(string)               {}
func (NopEventListener) OnOutgoingCallAccepted(string)              {}
func (NopEventListener) OnOutgoingCallDeclined(string)              {}
func (NopEventListener) OnOutgoingCallTimeout(string)               {}
func (NopEventListener) OnCallEndedByRemote(string)                 {}
func (NopEventListener) OnCallParticipantConnectionDown(string)     {}
func (NopEventListener) OnCallParticipantConnectionRestored(string) {}
func (NopEventListener) OnStartScreenSharingResult(error)           {}
func (NopEventListener) OnIncomingScreenSharingStarted(string)      {}
func (NopEventListener) OnIncomingScreenSharingStopped(string)      {}
func (NopEventListener) OnStartCameraSharingResult(error)           {}
func (NopEventListener) OnIncomingCameraSharingStarted(string)      {}
func (NopEventListener) OnIncomingCameraSharingStopped(string)      {}
func (NopEventListener) OnIncomingScreen([]byte)                    {}
func (NopEventListener) OnIncomingCamera([]byte)                    {}
func (NopEventListener) OnConnectionDown()                          {}
func (NopEventListener) OnConnectionRestored()                      {}
func (NopEventListener) OnConnectionRestoredAuthorizationNeeded()   {}

// AudioSink consumes encoded voice frames from the call partner.
type AudioSink interface {
	PlayAudio(data []byte)
}
