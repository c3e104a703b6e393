// Package packet defines the packet types, header framing and JSON bodies of
// the call signaling protocol.
//
// Every packet is an 8 byte packed header followed by the body:
//
//	[TYPE (4, little-endian)][BODY_SIZE (4, little-endian)][BODY (BODY_SIZE)]
//
// The header is the only framing and body interpretation is determined by
// the type. The same framing is used on the TCP signaling stream and for UDP
// media datagrams, one packet per datagram.
//
// Building and sending a request:
//
//	p, err := packet.Encode(packet.TypeStartOutgoingCall, &packet.NicknameBody{Nickname: "bob"})
//	if err != nil {
//	    return err
//	}
//	err = packet.WritePacket(conn, p)
//
// Reading from a stream:
//
//	r := packet.NewReader(conn)
//	for {
//	    p, err := r.ReadPacket()
//	    ...
//	}
package packet
