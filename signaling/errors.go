package signaling

import (
	"errors"

	"github.com/opd-ai/callcore/packet"
)

// Sentinel errors for signaling operations.
// These errors enable reliable error classification using errors.Is().

// Session errors.
var (
	// ErrConnectionDown indicates the transport is currently unreachable.
	ErrConnectionDown = errors.New("connection down")

	// ErrAlreadyAuthorized indicates the session is already authorized.
	ErrAlreadyAuthorized = errors.New("already authorized")

	// ErrNotAuthorized indicates an operation that needs an authorized session.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrOperationInProgress indicates the same request is still awaiting its result.
	ErrOperationInProgress = errors.New("operation in progress")

	// ErrTakenNickname indicates the server refused the nickname.
	ErrTakenNickname = errors.New("taken nickname")

	// ErrInvalidNickname indicates an empty, oversized or malformed nickname.
	ErrInvalidNickname = errors.New("invalid nickname")

	// ErrNetworkError indicates the transport failed to deliver a request
	// or the server reported a failure without a more specific status.
	ErrNetworkError = errors.New("network error")
)

// Call errors.
var (
	// ErrUnexistingUser indicates the called nickname is not online.
	ErrUnexistingUser = errors.New("unexisting user")

	// ErrAcceptCallInsteadOfStart indicates the callee already has a pending
	// offer to us; the caller should accept that offer instead of calling.
	ErrAcceptCallInsteadOfStart = errors.New("accept call instead of start")

	// ErrSelfCall indicates an attempt to call the local nickname.
	ErrSelfCall = errors.New("cannot call yourself")

	// ErrActiveCall indicates a call is already active.
	ErrActiveCall = errors.New("call already active")

	// ErrOutgoingCall indicates an outgoing call is already ringing.
	ErrOutgoingCall = errors.New("outgoing call already in progress")

	// ErrNoOutgoingCall indicates there is no outgoing call to stop.
	ErrNoOutgoingCall = errors.New("no outgoing call")

	// ErrNoActiveCall indicates there is no active call.
	ErrNoActiveCall = errors.New("no active call")

	// ErrNoIncomingCall indicates no pending offer from the nickname.
	ErrNoIncomingCall = errors.New("no incoming call from this user")
)

// Media errors.
var (
	// ErrAlreadySharing indicates the media source is already being shared.
	ErrAlreadySharing = errors.New("already sharing")

	// ErrNotSharing indicates the media source is not being shared.
	ErrNotSharing = errors.New("not sharing")
)

var statusErrors = map[string]error{
	packet.StatusTakenNickname:       ErrTakenNickname,
	packet.StatusUnexistingUser:      ErrUnexistingUser,
	packet.StatusNotAuthorized:       ErrNotAuthorized,
	packet.StatusAlreadyAuthorized:   ErrAlreadyAuthorized,
	packet.StatusOperationInProgress: ErrOperationInProgress,
	packet.StatusConnectionDown:      ErrConnectionDown,
	packet.StatusNetworkError:        ErrNetworkError,
}

// StatusError maps a wire result status to an error.
// Success maps to nil; unknown statuses map to ErrNetworkError.
func StatusError(status string) error {
	if status == packet.StatusSuccess {
		return nil
	}
	if err, ok := statusErrors[status]; ok {
		return err
	}
	return ErrNetworkError
}
