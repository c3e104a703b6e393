package packet

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ProtocolVersion is carried in the bodies that open or resume a session.
// The header has no version field; servers negotiate on these bodies only.
const ProtocolVersion = 1

// Result statuses carried by every *_RESULT packet.
const (
	StatusSuccess             = "success"
	StatusTakenNickname       = "taken_nickname"
	StatusUnexistingUser      = "unexisting_user"
	StatusNotAuthorized       = "not_authorized"
	StatusAlreadyAuthorized   = "already_authorized"
	StatusOperationInProgress = "operation_in_progress"
	StatusConnectionDown      = "connection_down"
	StatusNetworkError        = "network_error"
	StatusFailed              = "failed"
)

// AuthorizationRequest is the AUTHORIZE body.
type AuthorizationRequest struct {
	Version   int    `json:"version"`
	Nickname  string `json:"nickname"`
	PublicKey []byte `json:"publicKey"`
	UDPPort   uint16 `json:"udpPort"`
}

// ReconnectRequest is the RECONNECT body. It reuses the session token, so no
// new authorization handshake is needed.
type ReconnectRequest struct {
	Version  int    `json:"version"`
	Nickname string `json:"nickname"`
	Token    []byte `json:"token"`
	UDPPort  uint16 `json:"udpPort"`
}

// NicknameBody is used by logout, every call and sharing request, and most
// server notifications that only name the peer.
type NicknameBody struct {
	Nickname string `json:"nickname"`
}

// IncomingCall is the INCOMING_CALL body.
type IncomingCall struct {
	Nickname  string `json:"nickname"`
	PublicKey []byte `json:"publicKey,omitempty"`
}

// Result is the body of every *_RESULT packet.
type Result struct {
	Status   string `json:"status"`
	Nickname string `json:"nickname,omitempty"`
	Token    []byte `json:"token,omitempty"`
}

// Succeeded reports whether the result status is success.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// EncodeBody marshals a body structure to its wire form.
func EncodeBody(v interface{}) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// DecodeBody unmarshals a wire body into v.
func DecodeBody(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("decode body: %w", ErrShortPacket)
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// Encode builds a packet of the given type with a JSON body.
func Encode(t Type, v interface{}) (*Packet, error) {
	body, err := EncodeBody(v)
	if err != nil {
		return nil, err
	}
	return New(t, body), nil
}
