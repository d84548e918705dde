package meshstack

// Direction indicates whether a destination receives locally or only
// addresses a remote peer.
type Direction int

const (
	// In marks the local receiving destination.
	In Direction = iota
	// Out marks an outbound-only reference to a remote destination.
	Out
)

// Identity is a node's cryptographic identity as seen by the bridge. The
// private key material stays inside the stack and is never exported here.
type Identity struct {
	// Hash is the derived stable address fragment, 64 lowercase hex chars.
	Hash string

	// PublicKey is the hex encoding of the public key material.
	PublicKey string
}

// Destination is an addressable endpoint. Local destinations receive packets
// and links; remote destinations are outbound references identified solely
// by their address hash.
type Destination struct {
	// Hash is the destination address, 64 lowercase hex chars.
	Hash string

	// Name is the human-readable destination name, for example
	// "meshbridge.messages". Empty for remote references.
	Name string

	// Direction distinguishes the local receiving endpoint from remote
	// outbound references.
	Direction Direction
}

// Packet carries an inbound payload and its delivery metadata.
type Packet struct {
	// SourceHash is the sender's address hash, or empty when unknown.
	SourceHash string

	// DestinationHash is the local destination the packet was addressed to.
	DestinationHash string

	// Payload is the raw packet data.
	Payload []byte

	// RSSI is the received signal strength in dBm, nil for transports that
	// do not report it (for example UDP).
	RSSI *int

	// SNR is the signal-to-noise ratio in dB, nil when not reported.
	SNR *float64
}

// Link describes an established point-to-point channel initiated by a peer.
type Link struct {
	// DestinationHash is the peer's address hash.
	DestinationHash string

	// LinkID identifies this link, distinct from the destination hash.
	LinkID string
}

// Receipt is the optional acknowledgment for a sent packet.
type Receipt struct {
	// PacketID is the hash of the transmitted packet, 64 lowercase hex chars.
	PacketID string
}

// TransportStatus reports the live state of an attached transport.
type TransportStatus struct {
	// Connected reports whether the transport's underlying device or socket
	// is currently open.
	Connected bool

	// MessagesSent counts frames written since attach.
	MessagesSent uint64

	// MessagesReceived counts frames read since attach.
	MessagesReceived uint64
}
