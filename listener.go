package callcore

import (
	"github.com/opd-ai/callcore/handler"
)

// EventListener receives results and server events. See handler.EventListener.
type EventListener = handler.EventListener

// NopEventListener ignores every event. Embed it to implement only some
// callbacks.
type NopEventListener = handler.NopEventListener

// callWatcher forwards events to the application listener and keeps the
// audio stream in step with the call: running while a call is active,
// stopped and drained otherwise.
type callWatcher struct {
	EventListener
	core *Core
}

func (w *callWatcher) OnOutgoingCallAccepted(nickname string) {
	w.core.startAudio()
	w.EventListener.OnOutgoingCallAccepted(nickname)
}

func (w *callWatcher) OnAcceptCallResult(err error, nickname string) {
	if err != nil {
		w.core.stopAudio()
	}
	w.EventListener.OnAcceptCallResult(err, nickname)
}

func (w *callWatcher) OnCallEndedByRemote(nickname string) {
	w.core.stopAudio()
	w.EventListener.OnCallEndedByRemote(nickname)
}

func (w *callWatcher) OnConnectionRestored() {
	if w.core.state.IsActiveCall() {
		w.core.startAudio()
	}
	w.EventListener.OnConnectionRestored()
}

func (w *callWatcher) OnConnectionRestoredAuthorizationNeeded() {
	w.core.stopAudio()
	w.EventListener.OnConnectionRestoredAuthorizationNeeded()
}
