package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

// fakeStack is a scripted MeshStack for dispatcher and lifecycle tests.
type fakeStack struct {
	mu sync.Mutex

	initErr     error
	identityErr error
	announceErr error
	sendReceipt *meshstack.Receipt
	sendErr     error
	attachErr   error

	initialized bool
	closed      bool
	announces   int
	sent        [][]byte
	sentTo      []string
	attached    map[string]meshstack.TransportConfig
	status      map[string]meshstack.TransportStatus

	onPacket meshstack.PacketCallback
	onLink   meshstack.LinkCallback
}

func newFakeStack() *fakeStack {
	return &fakeStack{
		attached: make(map[string]meshstack.TransportConfig),
		status:   make(map[string]meshstack.TransportStatus),
	}
}

func (f *fakeStack) Initialize(configDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized = true
	return nil
}

func (f *fakeStack) LoadOrCreateIdentity(path string) (meshstack.Identity, error) {
	if f.identityErr != nil {
		return meshstack.Identity{}, f.identityErr
	}
	return meshstack.Identity{
		Hash:      strings.Repeat("1a", 32),
		PublicKey: strings.Repeat("2b", 64),
	}, nil
}

func (f *fakeStack) CreateLocalDestination(identity meshstack.Identity, namespace string) (meshstack.Destination, error) {
	return meshstack.Destination{
		Hash:      strings.Repeat("3c", 32),
		Name:      namespace,
		Direction: meshstack.In,
	}, nil
}

func (f *fakeStack) RegisterCallbacks(dest meshstack.Destination, onPacket meshstack.PacketCallback, onLink meshstack.LinkCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onPacket = onPacket
	f.onLink = onLink
}

func (f *fakeStack) Announce(ctx context.Context, dest meshstack.Destination) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.announceErr != nil {
		return f.announceErr
	}
	f.announces++
	return nil
}

func (f *fakeStack) ResolveOrCreateRemote(addressHash string) (meshstack.Destination, error) {
	normalized, err := meshstack.NormalizeAddressHash(addressHash)
	if err != nil {
		return meshstack.Destination{}, err
	}
	return meshstack.Destination{Hash: normalized, Direction: meshstack.Out}, nil
}

func (f *fakeStack) Send(ctx context.Context, dest meshstack.Destination, payload []byte) (*meshstack.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, payload)
	f.sentTo = append(f.sentTo, dest.Hash)
	return f.sendReceipt, nil
}

func (f *fakeStack) AttachTransport(handle string, config meshstack.TransportConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[handle] = config
	return nil
}

func (f *fakeStack) DetachTransport(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attached, handle)
	return nil
}

func (f *fakeStack) TransportStatus(handle string) (meshstack.TransportStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[handle], nil
}

func (f *fakeStack) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStack) announceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.announces
}

var _ meshstack.MeshStack = (*fakeStack)(nil)

// syncBuffer collects emitted events from concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// emittedEvent mirrors the outbound wire shape for assertions.
type emittedEvent struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
}

// parseEvents decodes every line in the buffer, failing the test on any
// malformed or interleaved output.
func parseEvents(t *testing.T, out *syncBuffer) []emittedEvent {
	t.Helper()
	var events []emittedEvent
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var ev emittedEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line %q", line)
		events = append(events, ev)
	}
	return events
}

// eventsOfType filters parsed events by tag.
func eventsOfType(events []emittedEvent, eventType string) []emittedEvent {
	var out []emittedEvent
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// newTestBridge wires a bridge over a fake stack with an idle input stream.
func newTestBridge(t *testing.T, stack meshstack.MeshStack) (*Bridge, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.Resolve()
	b := New(opts, stack, strings.NewReader(""), out)
	return b, out
}
