package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

// startTestBridge runs a full bridge over a pipe-backed input stream and
// returns the write end plus the Run error channel.
func startTestBridge(t *testing.T, fake *fakeStack) (*Bridge, *io.PipeWriter, *syncBuffer, chan error) {
	t.Helper()

	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.SettleDelay = 0
	opts.AnnounceInterval = time.Hour
	opts.ShutdownGrace = 500 * time.Millisecond
	opts.Resolve()

	inR, inW := io.Pipe()
	out := &syncBuffer{}
	b := New(opts, fake, inR, out)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(context.Background())
	}()
	t.Cleanup(func() {
		b.Shutdown()
		inW.Close()
	})
	return b, inW, out, errCh
}

func waitForEvent(t *testing.T, out *syncBuffer, eventType string) emittedEvent {
	t.Helper()
	var found emittedEvent
	require.Eventually(t, func() bool {
		for _, ev := range parseEvents(t, out) {
			if ev.Type == eventType {
				found = ev
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "no %s event emitted", eventType)
	return found
}

func waitForExit(t *testing.T, errCh chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not shut down in time")
		return nil
	}
}

func TestRunEmitsInitThenAnnounce(t *testing.T) {
	fake := newFakeStack()
	_, inW, out, errCh := startTestBridge(t, fake)

	waitForEvent(t, out, EventAnnounceSent)

	events := parseEvents(t, out)
	require.NotEmpty(t, events)
	assert.Equal(t, EventInit, events[0].Type)

	identity, ok := events[0].Data["identity"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("1a", 32), identity["hash"])
	assert.Equal(t, identityName, identity["name"])

	destination, ok := events[0].Data["destination"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, appNamespace, destination["name"])

	_, err := inW.Write([]byte(`{"type":"shutdown","data":{}}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, waitForExit(t, errCh))
	assert.True(t, fake.closed)
}

func TestRunServesCommandsOverPipe(t *testing.T) {
	fake := newFakeStack()
	_, inW, out, errCh := startTestBridge(t, fake)

	waitForEvent(t, out, EventInit)

	_, err := inW.Write([]byte(`{"type":"ping","data":{}}` + "\n"))
	require.NoError(t, err)
	waitForEvent(t, out, EventPong)

	_, err = inW.Write([]byte(`{"type":"shutdown","data":{}}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, waitForExit(t, errCh))
}

func TestRunShutsDownOnInputEOF(t *testing.T) {
	fake := newFakeStack()
	_, inW, out, errCh := startTestBridge(t, fake)

	waitForEvent(t, out, EventInit)

	require.NoError(t, inW.Close())
	require.NoError(t, waitForExit(t, errCh))
	assert.True(t, fake.closed)
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	fake := newFakeStack()

	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.SettleDelay = 0
	opts.AnnounceInterval = time.Hour
	opts.ShutdownGrace = 500 * time.Millisecond
	opts.Resolve()

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	b := New(opts, fake, inR, out)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx)
	}()

	waitForEvent(t, out, EventAnnounceSent)
	cancel()
	require.NoError(t, waitForExit(t, errCh))
	assert.True(t, fake.closed)
}

func TestRunStartupFailure(t *testing.T) {
	fake := newFakeStack()
	fake.initErr = errors.New("config unreadable")

	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.Resolve()

	out := &syncBuffer{}
	b := New(opts, fake, strings.NewReader(""), out)

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config unreadable")
	// No events before or after a startup failure.
	assert.Empty(t, out.String())
	assert.True(t, fake.closed)
}

func TestRunIdentityFailure(t *testing.T) {
	fake := newFakeStack()
	fake.identityErr = errors.New("permission denied")

	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.Resolve()

	b := New(opts, fake, strings.NewReader(""), &syncBuffer{})

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.True(t, fake.closed)
}

func TestStackCallbacksEmitEvents(t *testing.T) {
	fake := newFakeStack()
	b, inW, out, errCh := startTestBridge(t, fake)

	waitForEvent(t, out, EventInit)

	fake.mu.Lock()
	onPacket := fake.onPacket
	onLink := fake.onLink
	fake.mu.Unlock()
	require.NotNil(t, onPacket)
	require.NotNil(t, onLink)

	rssi := -42
	snr := 9.5
	onPacket(meshstack.Packet{
		SourceHash:      strings.Repeat("ab", 32),
		DestinationHash: strings.Repeat("3c", 32),
		Payload:         []byte("hello over the air"),
		RSSI:            &rssi,
		SNR:             &snr,
	})

	msg := waitForEvent(t, out, EventMessage)
	assert.Equal(t, strings.Repeat("ab", 32), msg.Data["from_hash"])
	assert.Equal(t, "hello over the air", msg.Data["text"])
	assert.Equal(t, float64(-42), msg.Data["rssi"])
	assert.Equal(t, 9.5, msg.Data["snr"])

	onLink(meshstack.Link{
		DestinationHash: strings.Repeat("ab", 32),
		LinkID:          "link-1",
	})

	link := waitForEvent(t, out, EventLinkEstablished)
	assert.Equal(t, "link-1", link.Data["link_id"])
	recorded, ok := b.reg.Link(strings.Repeat("ab", 32))
	require.True(t, ok)
	assert.Equal(t, "link-1", recorded.LinkID)

	_, err := inW.Write([]byte(`{"type":"shutdown","data":{}}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, waitForExit(t, errCh))
}

func TestPacketFromUnknownSource(t *testing.T) {
	fake := newFakeStack()
	_, inW, out, errCh := startTestBridge(t, fake)

	waitForEvent(t, out, EventInit)

	fake.mu.Lock()
	onPacket := fake.onPacket
	fake.mu.Unlock()
	require.NotNil(t, onPacket)

	onPacket(meshstack.Packet{
		DestinationHash: strings.Repeat("3c", 32),
		Payload:         []byte{0xff, 0xfe, 0x01},
	})

	msg := waitForEvent(t, out, EventMessage)
	assert.Equal(t, "unknown", msg.Data["from_hash"])
	// Non-UTF-8 payloads are hex encoded rather than mangled.
	assert.Equal(t, "fffe01", msg.Data["text"])
	assert.Nil(t, msg.Data["rssi"])
	assert.Nil(t, msg.Data["snr"])

	_, err := inW.Write([]byte(`{"type":"shutdown","data":{}}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, waitForExit(t, errCh))
}

func TestOversizedLineDoesNotStopIntake(t *testing.T) {
	fake := newFakeStack()
	fake.sendReceipt = &meshstack.Receipt{PacketID: "01"}

	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.SettleDelay = 0
	opts.AnnounceInterval = time.Hour
	opts.ShutdownGrace = 500 * time.Millisecond
	opts.Resolve()

	big := `{"type":"send","data":{"destination_hash":"` + strings.Repeat("ab", 32) +
		`","text":"` + strings.Repeat("x", 2*1024*1024) + `"}}`
	input := strings.NewReader(big + "\n" +
		`{"type":"ping","data":{}}` + "\n" +
		`{"type":"shutdown","data":{}}` + "\n")

	out := &syncBuffer{}
	b := New(opts, fake, input, out)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(context.Background())
	}()
	require.NoError(t, waitForExit(t, errCh))

	events := parseEvents(t, out)
	// The oversized send is discarded without any send event, and the
	// following ping still answers.
	assert.Len(t, eventsOfType(events, EventPong), 1)
	assert.Empty(t, eventsOfType(events, EventSendSuccess))
	assert.Empty(t, eventsOfType(events, EventSendFailed))
	assert.Empty(t, fake.sent)
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("first\r\nsecond\nunterminated"), 16)

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	line, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "unterminated", line)
}

func TestReadLineDiscardsOversized(t *testing.T) {
	big := strings.Repeat("a", maxLineSize+1)
	r := bufio.NewReaderSize(strings.NewReader(big+"\nnext\n"), 64)

	_, err := readLine(r)
	assert.ErrorIs(t, err, errLineTooLong)

	// The stream stays aligned on line boundaries.
	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "next", line)
}

func TestPeriodicAnnounce(t *testing.T) {
	fake := newFakeStack()

	opts := DefaultOptions()
	opts.ConfigDir = t.TempDir()
	opts.SettleDelay = 0
	opts.AnnounceInterval = 20 * time.Millisecond
	opts.ShutdownGrace = 500 * time.Millisecond
	opts.Resolve()

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	b := New(opts, fake, inR, out)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return fake.announceCount() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	b.Shutdown()
	require.NoError(t, waitForExit(t, errCh))
}
