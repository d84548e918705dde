// Package bridge implements the stdio bridge: command intake, event
// emission, lifecycle sequencing, and the coordination of the three
// concurrent activities (input reader, periodic announcer, stack callback
// delivery) around a shared shutdown signal.
package bridge

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/meshbridge/rnsbridge-go/internal/registry"
	"github.com/meshbridge/rnsbridge-go/pkg/logger"
	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

const (
	// appNamespace is the fixed application namespace for the local
	// receiving destination.
	appNamespace = "meshbridge.messages"

	// identityName is the display name reported in the init event.
	identityName = "Mesh Bridge Node"

	// maxLineSize bounds a single inbound command line.
	maxLineSize = 1024 * 1024
)

// Bridge owns the bridge's long-lived resources and its concurrent
// activities. Create with New, then call Run, which blocks until shutdown.
type Bridge struct {
	opts    Options
	stack   meshstack.MeshStack
	reg     *registry.Registry
	emitter *Emitter
	input   io.Reader

	identity  meshstack.Identity
	localDest meshstack.Destination

	// done is the shared shutdown signal observed by every activity.
	done         chan struct{}
	shuttingDown atomic.Bool

	readerExited    chan struct{}
	announcerExited chan struct{}
}

// New wires a bridge over the given stack and streams. input is the command
// stream (stdin), output the event stream (stdout).
func New(opts Options, stack meshstack.MeshStack, input io.Reader, output io.Writer) *Bridge {
	return &Bridge{
		opts:            opts,
		stack:           stack,
		reg:             registry.New(),
		emitter:         NewEmitter(output),
		input:           input,
		done:            make(chan struct{}),
		readerExited:    make(chan struct{}),
		announcerExited: make(chan struct{}),
	}
}

// Run executes the full bridge lifecycle: startup sequencing, the three
// concurrent activities, and orderly shutdown. It returns nil on clean
// shutdown and an error when startup fails; no partial running state is
// ever exposed on a startup error.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.startup(); err != nil {
		b.stack.Close()
		return err
	}

	go b.readLoop()
	go b.announceLoop()

	// Let freshly attached interfaces settle before the first announce;
	// announcing too early can be silently dropped by a not-yet-ready
	// interface.
	if !b.waitOrShutdown(ctx, b.opts.SettleDelay) {
		b.announce()
	}

	select {
	case <-b.done:
	case <-ctx.Done():
		logger.InfoC("bridge", "interrupt received, shutting down")
		b.Shutdown()
	}

	logger.InfoC("bridge", "bridge shutting down...")
	b.awaitExit("input reader", b.readerExited)
	b.awaitExit("announcer", b.announcerExited)

	if err := b.stack.Close(); err != nil {
		logger.ErrorCf("bridge", "error closing stack: %v", err)
	}
	logger.InfoC("bridge", "bridge shut down successfully")
	return nil
}

// Shutdown sets the shared shutdown signal. Safe to call from any
// goroutine, any number of times.
func (b *Bridge) Shutdown() {
	if b.shuttingDown.CompareAndSwap(false, true) {
		close(b.done)
	}
}

// startup runs the strictly ordered startup sequence. Every step's failure
// is fatal and aborts the remaining steps.
func (b *Bridge) startup() error {
	logger.InfoC("bridge", "initializing mesh stack...")
	if err := b.stack.Initialize(b.opts.ConfigDir); err != nil {
		return fmt.Errorf("initialize stack: %w", err)
	}
	logger.InfoCf("bridge", "stack initialized with config from: %s", b.opts.ConfigDir)

	identity, err := b.stack.LoadOrCreateIdentity(b.opts.IdentityPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	b.identity = identity

	dest, err := b.stack.CreateLocalDestination(identity, appNamespace)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	b.localDest = dest
	logger.InfoCf("bridge", "destination created: %s", dest.Hash)

	b.stack.RegisterCallbacks(dest, b.handlePacket, b.handleLink)

	b.emitter.Emit(EventInit, initData{
		Identity: identityInfo{
			Hash:      identity.Hash,
			PublicKey: identity.PublicKey,
			Name:      identityName,
		},
		Destination: destinationInfo{
			Hash: dest.Hash,
			Name: dest.Name,
		},
	})
	logger.InfoC("bridge", "bridge initialized successfully")
	return nil
}

// errLineTooLong marks an input line exceeding maxLineSize. The line is
// discarded and intake continues.
var errLineTooLong = errors.New("input line too long")

// readLoop is the input reader activity: one line at a time, each command
// processed synchronously before the next read, strictly in arrival order.
// A single bad line, including an oversized one, never stops intake.
func (b *Bridge) readLoop() {
	defer close(b.readerExited)

	logger.InfoC("bridge", "started listening for commands on stdin")
	reader := bufio.NewReaderSize(b.input, 64*1024)

	for {
		if b.shuttingDown.Load() {
			return
		}
		line, err := readLine(reader)
		switch {
		case err == nil:
		case errors.Is(err, errLineTooLong):
			logger.ErrorCf("dispatcher", "input line exceeds %d bytes, discarded", maxLineSize)
			continue
		case errors.Is(err, io.EOF):
			// A final unterminated line is still a command.
			if line != "" {
				b.handleLine(line)
			}
			logger.InfoC("bridge", "input stream closed")
			b.Shutdown()
			return
		default:
			if !b.shuttingDown.Load() {
				logger.ErrorCf("bridge", "error in stdin listener: %v", err)
			}
			// Stream failure triggers the same shutdown path as an
			// explicit command.
			b.Shutdown()
			return
		}
		if line == "" {
			continue
		}
		b.handleLine(line)
		if b.shuttingDown.Load() {
			// Stop accepting further input once shutdown is requested.
			return
		}
	}
}

// readLine reads one newline-terminated line. A line longer than
// maxLineSize is consumed through its newline and reported as
// errLineTooLong so the stream stays aligned on line boundaries.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		switch {
		case err == nil:
			return strings.TrimRight(string(line), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			if len(line) <= maxLineSize {
				continue
			}
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}
			return "", errLineTooLong
		default:
			return strings.TrimRight(string(line), "\r\n"), err
		}
	}
}

// announceLoop is the periodic announcer activity. The wait is cancellable
// so shutdown is never delayed by the announce interval.
func (b *Bridge) announceLoop() {
	defer close(b.announcerExited)

	logger.InfoC("bridge", "started announce loop")
	timer := time.NewTimer(b.opts.AnnounceInterval)
	defer timer.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-timer.C:
			b.announce()
			timer.Reset(b.opts.AnnounceInterval)
		}
	}
}

// announce broadcasts presence and reports it. Failure is logged, not
// emitted; there is no caller waiting on an announce.
func (b *Bridge) announce() {
	if err := b.stack.Announce(context.Background(), b.localDest); err != nil {
		logger.ErrorCf("bridge", "error announcing: %v", err)
		return
	}
	logger.InfoC("bridge", "announced destination to network")
	b.emitter.Emit(EventAnnounceSent, announceSentData{
		DestinationHash: b.localDest.Hash,
	})
}

// handlePacket runs on a stack goroutine for every inbound packet.
func (b *Bridge) handlePacket(p meshstack.Packet) {
	from := p.SourceHash
	if from == "" {
		from = "unknown"
	}
	logger.InfoCf("bridge", "packet received from %s", from)

	text := string(p.Payload)
	if !utf8.ValidString(text) {
		text = hex.EncodeToString(p.Payload)
	}

	b.emitter.Emit(EventMessage, messageData{
		FromHash: from,
		ToHash:   p.DestinationHash,
		Text:     text,
		RSSI:     p.RSSI,
		SNR:      p.SNR,
	})
}

// handleLink runs on a stack goroutine for every inbound link
// establishment. The most recent link per peer replaces any prior record.
func (b *Bridge) handleLink(link meshstack.Link) {
	logger.InfoCf("bridge", "link established: %s", link.DestinationHash)
	b.reg.RecordLink(link)
	b.emitter.Emit(EventLinkEstablished, linkEstablishedData{
		DestinationHash: link.DestinationHash,
		LinkID:          link.LinkID,
	})
}

// waitOrShutdown sleeps for d, cutting the sleep short on shutdown or
// context cancellation. It reports whether shutdown interrupted the wait.
func (b *Bridge) waitOrShutdown(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return b.shuttingDown.Load()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-b.done:
		return true
	case <-ctx.Done():
		return true
	}
}

// awaitExit waits for a background activity with a bound. An activity stuck
// in blocking I/O is abandoned rather than allowed to hang process exit.
func (b *Bridge) awaitExit(name string, exited <-chan struct{}) {
	select {
	case <-exited:
	case <-time.After(b.opts.ShutdownGrace):
		logger.WarnCf("bridge", "%s did not exit within %s, proceeding", name, b.opts.ShutdownGrace)
	}
}
