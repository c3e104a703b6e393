// Package testing provides an in-memory network double for deterministic
// tests of the call core.
//
// SimulatedNetwork implements every capability the core consumes from the
// network controller (packet and media sends, the local UDP port and
// connection attempts) without touching a socket. Every send is appended to
// a delivery log that tests inspect afterwards:
//
//	net := testing.NewSimulatedNetwork(40000)
//	svc := signaling.NewCallService(st, ops, net)
//	_ = svc.StartOutgoingCall("bob")
//	sent := net.Sent(packet.TypeStartOutgoingCall)
//
// SetFailure switches the double into failure mode so tests can cover the
// network_error path, and OnSend lets a test answer requests the way the
// signaling server would.
//
// All methods are safe for concurrent use.
package testing
