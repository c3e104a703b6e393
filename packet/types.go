package packet

import "fmt"

// Type identifies the body carried by a packet.
// The numeric values are part of the wire protocol and must never be reordered.
type Type uint32

// Client to server signaling packets.
const (
	TypeAuthorize Type = 1
	TypeLogout    Type = 2
	TypeReconnect Type = 3

	TypeStartOutgoingCall Type = 10
	TypeStopOutgoingCall  Type = 11
	TypeAcceptCall        Type = 12
	TypeDeclineCall       Type = 13
	TypeEndCall           Type = 14

	TypeStartScreenSharing Type = 20
	TypeStopScreenSharing  Type = 21
	TypeStartCameraSharing Type = 22
	TypeStopCameraSharing  Type = 23

	TypePong Type = 41
)

// Server to client signaling packets.
const (
	TypeAuthorizationResult Type = 100
	TypeLogoutResult        Type = 101
	TypeReconnectResult     Type = 102

	TypeStartOutgoingCallResult           Type = 110
	TypeAcceptCallResult                  Type = 111
	TypeIncomingCall                      Type = 112
	TypeIncomingCallExpired               Type = 113
	TypeOutgoingCallAccepted              Type = 114
	TypeOutgoingCallDeclined              Type = 115
	TypeOutgoingCallTimeout               Type = 116
	TypeCallEndedByRemote                 Type = 117
	TypeCallParticipantConnectionDown     Type = 118
	TypeCallParticipantConnectionRestored Type = 119

	TypeStartScreenSharingResult     Type = 120
	TypeIncomingScreenSharingStarted Type = 121
	TypeIncomingScreenSharingStopped Type = 122
	TypeStartCameraSharingResult     Type = 123
	TypeIncomingCameraSharingStarted Type = 124
	TypeIncomingCameraSharingStopped Type = 125

	TypePing Type = 140
)

// Media packets, carried over UDP in both directions.
const (
	TypeVoice  Type = 200
	TypeScreen Type = 201
	TypeCamera Type = 202
)

var typeNames = map[Type]string{
	TypeAuthorize:                         "AUTHORIZE",
	TypeLogout:                            "LOGOUT",
	TypeReconnect:                         "RECONNECT",
	TypeStartOutgoingCall:                 "START_OUTGOING_CALL",
	TypeStopOutgoingCall:                  "STOP_OUTGOING_CALL",
	TypeAcceptCall:                        "ACCEPT_CALL",
	TypeDeclineCall:                       "DECLINE_CALL",
	TypeEndCall:                           "END_CALL",
	TypeStartScreenSharing:                "START_SCREEN_SHARING",
	TypeStopScreenSharing:                 "STOP_SCREEN_SHARING",
	TypeStartCameraSharing:                "START_CAMERA_SHARING",
	TypeStopCameraSharing:                 "STOP_CAMERA_SHARING",
	TypePong:                              "PONG",
	TypeAuthorizationResult:               "AUTHORIZATION_RESULT",
	TypeLogoutResult:                      "LOGOUT_RESULT",
	TypeReconnectResult:                   "RECONNECT_RESULT",
	TypeStartOutgoingCallResult:           "START_OUTGOING_CALL_RESULT",
	TypeAcceptCallResult:                  "ACCEPT_CALL_RESULT",
	TypeIncomingCall:                      "INCOMING_CALL",
	TypeIncomingCallExpired:               "INCOMING_CALL_EXPIRED",
	TypeOutgoingCallAccepted:              "OUTGOING_CALL_ACCEPTED",
	TypeOutgoingCallDeclined:              "OUTGOING_CALL_DECLINED",
	TypeOutgoingCallTimeout:               "OUTGOING_CALL_TIMEOUT",
	TypeCallEndedByRemote:                 "CALL_ENDED_BY_REMOTE",
	TypeCallParticipantConnectionDown:     "CALL_PARTICIPANT_CONNECTION_DOWN",
	TypeCallParticipantConnectionRestored: "CALL_PARTICIPANT_CONNECTION_RESTORED",
	TypeStartScreenSharingResult:          "START_SCREEN_SHARING_RESULT",
	TypeIncomingScreenSharingStarted:      "INCOMING_SCREEN_SHARING_STARTED",
	TypeIncomingScreenSharingStopped:      "INCOMING_SCREEN_SHARING_STOPPED",
	TypeStartCameraSharingResult:          "START_CAMERA_SHARING_RESULT",
	TypeIncomingCameraSharingStarted:      "INCOMING_CAMERA_SHARING_STARTED",
	TypeIncomingCameraSharingStopped:      "INCOMING_CAMERA_SHARING_STOPPED",
	TypePing:                              "PING",
	TypeVoice:                             "VOICE",
	TypeScreen:                            "SCREEN",
	TypeCamera:                            "CAMERA",
}

// String returns the protocol name of the packet type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

// Known reports whether the type is defined by this protocol revision.
// Unknown types are dropped by receivers rather than treated as errors.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// IsMedia reports whether the type travels on the media (UDP) path.
func (t Type) IsMedia() bool {
	return t == TypeVoice || t == TypeScreen || t == TypeCamera
}
