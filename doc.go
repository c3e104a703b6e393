// Package callcore is the client core of a peer-to-peer calling application.
//
// A Core authorizes a nickname with a signaling server, negotiates calls with
// other users through it, survives transient connection loss, and runs the
// real-time voice pipeline while a call is active. Screen and camera frames
// are relayed already encoded; capture and codecs for video live outside the
// core.
//
// # Getting Started
//
// Create a Core, implement the callbacks you care about and start it:
//
//	core, err := callcore.New(callcore.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Close()
//
//	type ui struct{ callcore.NopEventListener }
//
//	func (ui) OnIncomingCall(nickname string) {
//	    fmt.Println("incoming call from", nickname)
//	}
//
//	if err := core.Start("signal.example.net", "signal.example.net", 8081, 8082, ui{}); err != nil {
//	    log.Fatal(err)
//	}
//	if err := core.Authorize("alice"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Two Result Channels
//
// Every operation returns an error synchronously when a local precondition
// fails, before anything is sent. Errors are the sentinels in package
// signaling and are classified with errors.Is:
//
//	if errors.Is(err, signaling.ErrAcceptCallInsteadOfStart) {
//	    err = core.AcceptCall(nickname)
//	}
//
// The server's verdict arrives later through the EventListener, for example
// OnStartOutgoingCallResult. A request the server never answers is reported
// there as signaling.ErrNetworkError once the operation timeout elapses.
// PendingOperations lists the requests still waiting.
//
// # Optimistic State
//
// Several operations update local state as soon as the request is sent:
// Logout resets the session, StartOutgoingCall records the callee and
// AcceptCall marks the call active. A failing result from the server undoes
// the change before the listener is told.
//
// # Connection Loss
//
// When the signaling connection drops, OnConnectionDown fires, audio stops
// and reconnection starts in the background. An authorized session resumes
// with its token and OnConnectionRestored fires; otherwise
// OnConnectionRestoredAuthorizationNeeded asks the user to authorize again.
//
// # Audio
//
// The audio stream runs only while a call is active. Volumes are integer
// percentages in [0, 200]. Devices can be listed and switched at any time;
// device changes are picked up by polling at Options.DeviceWatchInterval.
package callcore
