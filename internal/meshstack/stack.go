// Package meshstack implements the pkg/meshstack contract with a
// software-only stack: blake3-addressed destinations, CBOR wire frames, and
// pluggable UDP and RNode serial transports. No physical hardware is
// required for basic operation.
package meshstack

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/meshbridge/rnsbridge-go/pkg/logger"
	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

var (
	// ErrNotInitialized is returned when the stack is used before
	// Initialize has completed.
	ErrNotInitialized = errors.New("stack not initialized")
	// ErrClosed is returned when the stack is used after Close.
	ErrClosed = errors.New("stack closed")
	// ErrUnknownIdentity is returned when a destination is derived from an
	// identity this stack does not hold private material for.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Stack is the software mesh stack. It is safe for concurrent use; the
// mutex is held only around map operations, never across transport I/O.
type Stack struct {
	mu          sync.Mutex
	config      *Config
	initialized bool
	closed      bool

	identities map[string]*keypair // identity hash -> private material
	owners     map[string]string   // local destination hash -> identity hash

	localDest string
	onPacket  meshstack.PacketCallback
	onLink    meshstack.LinkCallback

	interfaces map[string]transport // config-declared interfaces
	rnodes     map[string]transport // explicitly attached transports
	paths      map[string]string    // destination hash -> transport handle
}

// New creates an uninitialized stack. Call Initialize before use.
func New() *Stack {
	return &Stack{
		identities: make(map[string]*keypair),
		owners:     make(map[string]string),
		interfaces: make(map[string]transport),
		rnodes:     make(map[string]transport),
		paths:      make(map[string]string),
	}
}

// Initialize brings the stack online, synthesizing a default configuration
// in configDir when none exists.
func (s *Stack) Initialize(configDir string) error {
	cfg, err := LoadOrCreateConfig(configDir)
	if err != nil {
		return fmt.Errorf("stack init: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.initialized {
		return nil
	}

	for _, ic := range cfg.Interfaces {
		t, err := newUDPTransport(ic, s.handleFrame)
		if err != nil {
			// Roll back anything brought up so far; a later Initialize
			// must start from a clean slate.
			for _, up := range s.interfaces {
				up.close()
			}
			s.interfaces = make(map[string]transport)
			return fmt.Errorf("stack init: %w", err)
		}
		s.interfaces[ic.Name] = t
		logger.InfoCf("stack", "interface %s up on %s", ic.Name, ic.Listen)
	}

	s.config = cfg
	s.initialized = true
	return nil
}

// LoadOrCreateIdentity loads the keypair stored at path, generating and
// persisting a new one when the file does not exist.
func (s *Stack) LoadOrCreateIdentity(path string) (meshstack.Identity, error) {
	raw, err := os.ReadFile(path)
	var kp *keypair
	switch {
	case err == nil:
		kp, err = keypairFromSeed(raw)
		if err != nil {
			return meshstack.Identity{}, fmt.Errorf("load identity %s: %w", path, err)
		}
		logger.InfoCf("stack", "loaded existing identity from %s", path)
	case errors.Is(err, os.ErrNotExist):
		kp, err = generateKeypair()
		if err != nil {
			return meshstack.Identity{}, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return meshstack.Identity{}, fmt.Errorf("persist identity: %w", err)
		}
		if err := os.WriteFile(path, kp.material(), 0o600); err != nil {
			return meshstack.Identity{}, fmt.Errorf("persist identity: %w", err)
		}
		logger.InfoCf("stack", "created new identity and saved to %s", path)
	default:
		return meshstack.Identity{}, fmt.Errorf("read identity %s: %w", path, err)
	}

	s.mu.Lock()
	s.identities[kp.hash()] = kp
	s.mu.Unlock()

	return meshstack.Identity{
		Hash:      kp.hash(),
		PublicKey: hex.EncodeToString(kp.publicKey()),
	}, nil
}

// CreateLocalDestination derives the receiving destination for an identity
// and namespace. Idempotent given the same inputs.
func (s *Stack) CreateLocalDestination(identity meshstack.Identity, namespace string) (meshstack.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Hash]; !ok {
		return meshstack.Destination{}, ErrUnknownIdentity
	}

	hash := destinationHash(identity.Hash, namespace)
	s.owners[hash] = identity.Hash
	return meshstack.Destination{
		Hash:      hash,
		Name:      namespace,
		Direction: meshstack.In,
	}, nil
}

// RegisterCallbacks registers inbound delivery for a local destination.
// Callbacks fire on the stack's own goroutines.
func (s *Stack) RegisterCallbacks(dest meshstack.Destination, onPacket meshstack.PacketCallback, onLink meshstack.LinkCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localDest = dest.Hash
	s.onPacket = onPacket
	s.onLink = onLink
}

// Announce broadcasts the destination's presence on every connected
// transport.
func (s *Stack) Announce(ctx context.Context, dest meshstack.Destination) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	var pub []byte
	if owner, ok := s.owners[dest.Hash]; ok {
		if kp, ok := s.identities[owner]; ok {
			pub = kp.publicKey()
		}
	}
	outputs := s.connectedTransports()
	s.mu.Unlock()

	destBytes, err := hex.DecodeString(dest.Hash)
	if err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	frame, err := encodeFrame(wireFrame{
		Type:      frameAnnounce,
		Source:    destBytes,
		PublicKey: pub,
	})
	if err != nil {
		return err
	}

	for _, t := range outputs {
		if err := t.write(frame); err != nil {
			logger.DebugCf("stack", "announce on %s: %v", t.handle(), err)
		}
	}
	return nil
}

// ResolveOrCreateRemote constructs an outbound destination reference for a
// normalized address hash. No network I/O.
func (s *Stack) ResolveOrCreateRemote(addressHash string) (meshstack.Destination, error) {
	normalized, err := meshstack.NormalizeAddressHash(addressHash)
	if err != nil {
		return meshstack.Destination{}, err
	}
	return meshstack.Destination{
		Hash:      normalized,
		Direction: meshstack.Out,
	}, nil
}

// Send transmits a payload to a remote destination, best effort. A nil
// receipt with a nil error means no transport confirmed the transmission.
func (s *Stack) Send(ctx context.Context, dest meshstack.Destination, payload []byte) (*meshstack.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.initialized {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	source := s.localDest
	outputs := s.transportsFor(dest.Hash)
	s.mu.Unlock()

	destBytes, err := hex.DecodeString(dest.Hash)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	var sourceBytes []byte
	if source != "" {
		sourceBytes, _ = hex.DecodeString(source)
	}

	frame, err := encodeFrame(wireFrame{
		Type:        frameData,
		Source:      sourceBytes,
		Destination: destBytes,
		Payload:     payload,
	})
	if err != nil {
		return nil, err
	}

	delivered := false
	for _, t := range outputs {
		if err := t.write(frame); err != nil {
			logger.DebugCf("stack", "send on %s: %v", t.handle(), err)
			continue
		}
		delivered = true
	}
	if !delivered {
		// No transport confirmed the write; not an error, just no receipt.
		return nil, nil
	}

	sum := blake3.Sum256(frame)
	return &meshstack.Receipt{PacketID: hex.EncodeToString(sum[:])}, nil
}

// AttachTransport attaches an RNode transport under the given handle. The
// serial device is opened lazily; attach succeeds without hardware present.
func (s *Stack) AttachTransport(handle string, config meshstack.TransportConfig) error {
	config.SetDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.rnodes[handle]; exists {
		return ErrTransportExists
	}
	s.rnodes[handle] = newRNodeTransport(handle, config, s.handleFrame)
	return nil
}

// DetachTransport detaches and closes the transport attached under handle.
func (s *Stack) DetachTransport(handle string) error {
	s.mu.Lock()
	t, ok := s.rnodes[handle]
	if ok {
		delete(s.rnodes, handle)
	}
	s.mu.Unlock()
	if !ok {
		return ErrTransportNotFound
	}
	return t.close()
}

// TransportStatus reports the live state of an attached transport.
func (s *Stack) TransportStatus(handle string) (meshstack.TransportStatus, error) {
	s.mu.Lock()
	t, ok := s.rnodes[handle]
	s.mu.Unlock()
	if !ok {
		return meshstack.TransportStatus{}, ErrTransportNotFound
	}
	return t.status(), nil
}

// Close shuts down every transport. Idempotent.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	all := make([]transport, 0, len(s.interfaces)+len(s.rnodes))
	for _, t := range s.interfaces {
		all = append(all, t)
	}
	for _, t := range s.rnodes {
		all = append(all, t)
	}
	s.mu.Unlock()

	var firstErr error
	for _, t := range all {
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// connectedTransports returns every transport currently able to write.
// Caller must hold the mutex.
func (s *Stack) connectedTransports() []transport {
	out := make([]transport, 0, len(s.interfaces)+len(s.rnodes))
	for _, t := range s.interfaces {
		if t.connected() {
			out = append(out, t)
		}
	}
	for _, t := range s.rnodes {
		if t.connected() {
			out = append(out, t)
		}
	}
	return out
}

// transportsFor prefers the transport a destination was last announced on,
// falling back to every connected transport. Caller must hold the mutex.
func (s *Stack) transportsFor(destHash string) []transport {
	if handle, ok := s.paths[destHash]; ok {
		if t, ok := s.interfaces[handle]; ok && t.connected() {
			return []transport{t}
		}
		if t, ok := s.rnodes[handle]; ok && t.connected() {
			return []transport{t}
		}
	}
	return s.connectedTransports()
}

// handleFrame processes one raw inbound frame from any transport. It runs
// on transport read goroutines; callbacks are dispatched on fresh
// goroutines so a slow consumer cannot stall a read loop.
func (s *Stack) handleFrame(handle string, raw []byte) {
	frame, err := decodeFrame(raw)
	if err != nil {
		logger.DebugCf("stack", "dropped frame from %s: %v", handle, err)
		return
	}

	switch frame.Type {
	case frameAnnounce:
		source := hex.EncodeToString(frame.Source)
		s.mu.Lock()
		s.paths[source] = handle
		s.mu.Unlock()
		logger.DebugCf("stack", "announce from %s via %s", source, handle)

	case frameData:
		dest := hex.EncodeToString(frame.Destination)
		s.mu.Lock()
		cb := s.onPacket
		isLocal := dest == s.localDest
		s.mu.Unlock()
		if !isLocal || cb == nil {
			return
		}
		packet := meshstack.Packet{
			SourceHash:      hex.EncodeToString(frame.Source),
			DestinationHash: dest,
			Payload:         frame.Payload,
		}
		go cb(packet)

	case frameLink:
		dest := hex.EncodeToString(frame.Destination)
		s.mu.Lock()
		cb := s.onLink
		isLocal := dest == s.localDest
		s.mu.Unlock()
		if !isLocal || cb == nil {
			return
		}
		linkID, err := newLinkID(frame.Source, frame.Destination)
		if err != nil {
			logger.WarnCf("stack", "link from %s dropped: %v", hex.EncodeToString(frame.Source), err)
			return
		}
		link := meshstack.Link{
			DestinationHash: hex.EncodeToString(frame.Source),
			LinkID:          linkID,
		}
		go cb(link)
	}
}

// newLinkID derives a fresh link identifier, distinct from either address.
func newLinkID(source, dest []byte) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("link id nonce: %w", err)
	}
	h := blake3.New()
	h.Write(source)
	h.Write(dest)
	h.Write(nonce)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:32]), nil
}
