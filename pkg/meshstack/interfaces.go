package meshstack

import (
	"context"
	"io"
)

// PacketCallback is invoked by the stack whenever a packet addressed to a
// registered local destination arrives. It may be called from any goroutine.
type PacketCallback func(packet Packet)

// LinkCallback is invoked by the stack whenever a remote peer establishes a
// link to a registered local destination. It may be called from any goroutine.
type LinkCallback func(link Link)

// MeshStack is the adapter contract over the mesh networking stack. Every
// operation delegates to the stack and never retries on failure; callers
// decide whether to retry.
type MeshStack interface {
	io.Closer

	// Initialize brings the networking stack online using the given
	// configuration directory. If no configuration exists there, a minimal
	// working configuration is synthesized first (transport role enabled,
	// a default UDP interface), so the stack is usable with zero
	// pre-existing configuration.
	Initialize(configDir string) error

	// LoadOrCreateIdentity loads the identity stored at path, or generates
	// a new one and persists it there. It fails only on storage I/O errors,
	// which are fatal to startup.
	LoadOrCreateIdentity(path string) (Identity, error)

	// CreateLocalDestination derives the receiving destination for the given
	// identity and application namespace. The derivation is deterministic:
	// the same identity and namespace always yield the same destination.
	CreateLocalDestination(identity Identity, namespace string) (Destination, error)

	// RegisterCallbacks registers the packet and link-established callbacks
	// for a local destination. The callbacks are delivered on the stack's
	// own goroutines, not the caller's.
	RegisterCallbacks(dest Destination, onPacket PacketCallback, onLink LinkCallback)

	// Announce broadcasts the destination's presence to the network.
	// Side effect only; there is no response payload.
	Announce(ctx context.Context, dest Destination) error

	// ResolveOrCreateRemote constructs an outbound-only reference to the
	// destination with the given address hash. Pure lookup-or-construct,
	// no network I/O.
	ResolveOrCreateRemote(addressHash string) (Destination, error)

	// Send transmits payload to the destination, best effort. A nil receipt
	// with a nil error means delivery was not confirmed; under lossy
	// transports that is a normal outcome, not a failure.
	Send(ctx context.Context, dest Destination, payload []byte) (*Receipt, error)

	// AttachTransport attaches a radio/network transport under the given
	// handle (for example a serial device path).
	AttachTransport(handle string, config TransportConfig) error

	// DetachTransport detaches the transport attached under handle.
	DetachTransport(handle string) error

	// TransportStatus reports the live state of an attached transport.
	TransportStatus(handle string) (TransportStatus, error)
}
