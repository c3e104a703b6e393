// Package operation correlates user-initiated requests with their
// asynchronous results.
//
// A UserOperation is recorded as pending when its request has been sent and
// removed when the matching result packet arrives. The GUI layer uses the
// pending set to render "operation in progress" feedback, and the services use
// it to refuse duplicate in-flight requests.
package operation

import "fmt"

// Type enumerates the user-initiated operations.
type Type int

const (
	Authorize Type = iota
	Logout
	StartOutgoingCall
	StopOutgoingCall
	AcceptCall
	DeclineCall
	EndCall
	StartScreenSharing
	StopScreenSharing
	StartCameraSharing
	StopCameraSharing
)

var typeNames = [...]string{
	Authorize:          "AUTHORIZE",
	Logout:             "LOGOUT",
	StartOutgoingCall:  "START_OUTGOING_CALL",
	StopOutgoingCall:   "STOP_OUTGOING_CALL",
	AcceptCall:         "ACCEPT_CALL",
	DeclineCall:        "DECLINE_CALL",
	EndCall:            "END_CALL",
	StartScreenSharing: "START_SCREEN_SHARING",
	StopScreenSharing:  "STOP_SCREEN_SHARING",
	StartCameraSharing: "START_CAMERA_SHARING",
	StopCameraSharing:  "STOP_CAMERA_SHARING",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// UserOperation identifies one user action. It is a comparable value type:
// two operations are equal when both type and nickname match.
type UserOperation struct {
	Type     Type
	Nickname string
}

// New creates a UserOperation.
func New(t Type, nickname string) UserOperation {
	return UserOperation{Type: t, Nickname: nickname}
}

func (o UserOperation) String() string {
	if o.Nickname == "" {
		return o.Type.String()
	}
	return fmt.Sprintf("%s(%s)", o.Type, o.Nickname)
}

func (o UserOperation) key() string {
	return fmt.Sprintf("%d\x00%s", int(o.Type), o.Nickname)
}
