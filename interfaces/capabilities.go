package interfaces

import (
	"context"

	"github.com/opd-ai/callcore/packet"
)

// PacketSender sends a signaling body over the reliable (TCP) channel.
type PacketSender interface {
	// SendPacket frames body with the given type and writes it to the server.
	SendPacket(body []byte, packetType packet.Type) error
}

// MediaSender sends a media body over the datagram (UDP) channel.
type MediaSender interface {
	// SendMedia frames body with the given type and sends it as one datagram.
	SendMedia(body []byte, packetType packet.Type) error
}

// PortProvider exposes the local UDP port the server must deliver media to.
type PortProvider interface {
	// LocalUDPPort returns the bound local UDP port, or 0 when unbound.
	LocalUDPPort() uint16
}

// ConnectionAttempter re-establishes the transport after a loss.
type ConnectionAttempter interface {
	// AttemptEstablishConnection blocks for a bounded interval and reports
	// whether the server is reachable again.
	AttemptEstablishConnection() bool
}

// Network is the full capability set of the network controller.
type Network interface {
	PacketSender
	MediaSender
	PortProvider
	ConnectionAttempter
}

// Handlers receive what the transport reads from the server. Packet is
// called in arrival order for signaling packets, Media for datagrams and
// Disconnect once per lost connection.
type Handlers struct {
	Packet     func(p *packet.Packet)
	Media      func(p *packet.Packet)
	Disconnect func(err error)
}

// Transport is a Network with a lifecycle. The core owns one for the
// duration of a session.
type Transport interface {
	Network

	// SetHandlers installs the inbound handlers. It must be called before
	// Connect.
	SetHandlers(h Handlers)

	// Connect opens the signaling connection and the media socket.
	Connect(ctx context.Context) error

	// Close releases every socket. No handler is called afterwards.
	Close() error
}

// PacketSenderFunc adapts a function to PacketSender.
type PacketSenderFunc func(body []byte, packetType packet.Type) error

// SendPacket calls f(body, packetType).
func (f PacketSenderFunc) SendPacket(body []byte, packetType packet.Type) error {
	return f(body, packetType)
}

// PortProviderFunc adapts a function to PortProvider.
type PortProviderFunc func() uint16

// LocalUDPPort calls f().
func (f PortProviderFunc) LocalUDPPort() uint16 {
	return f()
}

// ConnectionAttempterFunc adapts a function to ConnectionAttempter.
type ConnectionAttempterFunc func() bool

// AttemptEstablishConnection calls f().
func (f ConnectionAttempterFunc) AttemptEstablishConnection() bool {
	return f()
}
