// Package meshstack defines the contract between the bridge and the
// underlying mesh networking stack.
//
// The bridge depends only on the abstractions in this package:
//   - MeshStack: the stack adapter interface (identity, destinations,
//     announce, send, transports, callback registration)
//   - Identity: a node's cryptographic keypair material and derived address
//   - Destination: an addressable endpoint, local (receiving) or remote
//     (outbound reference only)
//   - Packet / Link: inbound delivery metadata handed to callbacks
//   - Receipt: the optional delivery acknowledgment for a sent packet
//   - TransportConfig: typed radio/interface parameters with defaults
//
// Callbacks registered through RegisterCallbacks are invoked on the stack's
// own goroutines and may fire concurrently with each other and with any
// caller of the interface. Consumers must apply their own synchronization
// before touching shared state from a callback.
//
// The interfaces use Go idioms:
//   - context.Context on operations that may block on network I/O
//   - Explicit error returns following Go conventions
//   - io.Closer for resource cleanup
//
// Example usage:
//
//	// Bring the stack online and establish the local endpoint
//	err := stack.Initialize(configDir)
//	if err != nil {
//		return err
//	}
//	defer stack.Close()
//
//	identity, err := stack.LoadOrCreateIdentity(identityPath)
//	if err != nil {
//		return err
//	}
//	dest, err := stack.CreateLocalDestination(identity, "meshbridge.messages")
//	if err != nil {
//		return err
//	}
//
//	// Receive packets and announce presence
//	stack.RegisterCallbacks(dest, onPacket, onLink)
//	err = stack.Announce(ctx, dest)
//	if err != nil {
//		return err
//	}
package meshstack
