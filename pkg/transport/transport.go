// Package transport defines the pluggable frame delivery contract used by
// the messaging layer. Socket-level concerns (TLS, framing, link retries)
// belong to implementations and are outside this package.
package transport

import "context"

// PeerID is an opaque stable peer identity.
type PeerID string

// Handler consumes one inbound frame from a peer.
type Handler func(from PeerID, frame []byte)

// Transport delivers opaque frames to peers. Frames carry an encoded
// protocol.Message; implementations must not interpret them.
type Transport interface {
	// Send delivers one frame to a peer, honoring ctx cancellation.
	Send(ctx context.Context, to PeerID, frame []byte) error
	// Close releases the local endpoint. Further Sends fail.
	Close() error
}
