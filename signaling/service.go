// Package signaling translates user intent into outbound signaling packets.
//
// The services validate local preconditions against the client state before
// anything is sent, so precondition failures are reported synchronously and
// never reach the wire. Remote outcomes arrive later through the packet
// handler. Transitions the services apply after a successful send are
// optimistic; the packet handler corrects them when the server disagrees.
package signaling

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/state"
)

// base carries the dependencies shared by every service.
type base struct {
	state  *state.Manager
	ops    *operation.Tracker
	sender interfaces.PacketSender
}

// checkSession validates the preconditions common to every session operation,
// in order: transport reachable, then authorized.
func (b *base) checkSession() error {
	if b.state.IsConnectionDown() {
		return ErrConnectionDown
	}
	if !b.state.IsAuthorized() {
		return ErrNotAuthorized
	}
	return nil
}

// send encodes v as the body of a packet of type t and hands it to the sender.
// Transport failures are reported as ErrNetworkError.
func (b *base) send(function string, t packet.Type, v interface{}) error {
	body, err := packet.EncodeBody(v)
	if err != nil {
		return err
	}

	if err := b.sender.SendPacket(body, t); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"packet_type": t.String(),
			"error":       err.Error(),
		}).Warn("Failed to send signaling packet")
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    function,
		"packet_type": t.String(),
		"body_size":   len(body),
	}).Debug("Signaling packet sent")
	return nil
}

// ValidateNickname checks that a nickname is non-empty, bounded and printable.
func ValidateNickname(nickname string) error {
	if nickname == "" || len(nickname) > limits.MaxNickname || !utf8.ValidString(nickname) {
		return ErrInvalidNickname
	}
	for _, r := range nickname {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ErrInvalidNickname
		}
	}
	return nil
}
