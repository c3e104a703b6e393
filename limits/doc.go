// Package limits centralizes the size limits of the call signaling protocol.
//
// The packet framing layer, the signaling services and the media path all
// validate against the constants defined here so that a single change keeps
// every component consistent:
//
//	if err := limits.ValidateBodySize(header.BodySize); err != nil {
//	    return err // framing error, drop the stream
//	}
package limits
