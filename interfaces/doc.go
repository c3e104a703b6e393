// Package interfaces defines the capabilities the call core consumes from the
// network controller.
//
// The signaling services, the reconnection loop and the audio pipeline never
// hold a reference to the concrete transport. Each receives only the
// capability it needs at construction, which keeps ownership explicit and
// lets tests substitute in-memory implementations:
//
//	auth := signaling.NewAuthorizationService(state, tracker, keys, network, network)
//
// [PacketSender] delivers signaling bodies over the reliable channel.
//
// [MediaSender] delivers encoded voice, screen and camera frames over UDP.
//
// [PortProvider] reports the local UDP port announced to the server.
//
// [ConnectionAttempter] is the blocking reconnect hook used by the
// reconnection loop.
//
// [Transport] adds the connection lifecycle and the inbound [Handlers] on top
// of [Network]. Only the core facade uses it.
//
// The Func adapters turn plain functions into capabilities:
//
//	sender := interfaces.PacketSenderFunc(func(body []byte, t packet.Type) error {
//	    return nil
//	})
package interfaces
