// Package limits provides centralized size limits for the call signaling wire protocol.
// This ensures consistent validation across the framing layer, the services and the media path.
package limits

import (
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the packed packet header: type (4 bytes) + body size (4 bytes).
	HeaderSize = 8

	// MaxPacketBody is the absolute maximum body size accepted from the stream transport (1MB).
	// Anything larger is treated as a framing error and the connection is dropped.
	MaxPacketBody = 1024 * 1024

	// MaxDatagram is the largest UDP datagram read by the media socket.
	// Screen and camera frames are expected to be fragmented by their producers above this size.
	MaxDatagram = 65507

	// MaxMediaBody is the maximum media body that fits in one datagram together with the header.
	MaxMediaBody = MaxDatagram - HeaderSize

	// MaxNickname is the maximum nickname length in bytes.
	MaxNickname = 64
)

var (
	// ErrEmptyBody is returned for a media packet without payload.
	ErrEmptyBody = errors.New("empty body")

	// ErrBodyTooLarge is returned when a body exceeds its limit.
	ErrBodyTooLarge = errors.New("body too large")
)

// ValidateBodySize validates a declared signaling body size against MaxPacketBody.
// An empty body is valid on the wire, so only the upper bound is checked.
func ValidateBodySize(size uint32) error {
	if size > MaxPacketBody {
		return fmt.Errorf("%w: body size %d exceeds limit %d", ErrBodyTooLarge, size, MaxPacketBody)
	}
	return nil
}

// ValidateMediaBody validates a media payload against MaxMediaBody.
func ValidateMediaBody(body []byte) error {
	if len(body) == 0 {
		return ErrEmptyBody
	}
	if len(body) > MaxMediaBody {
		return fmt.Errorf("%w: media size %d exceeds limit %d", ErrBodyTooLarge, len(body), MaxMediaBody)
	}
	return nil
}
