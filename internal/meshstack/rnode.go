package meshstack

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/meshbridge/rnsbridge-go/pkg/logger"
	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

// KISS framing bytes used on the serial line.
const (
	kissFEND  = 0xC0
	kissFESC  = 0xDB
	kissTFEND = 0xDC
	kissTFESC = 0xDD
	kissData  = 0x00
)

// reconnectDelay separates attempts to open an absent or failing serial device.
const reconnectDelay = 3 * time.Second

// rnodeTransport drives an RNode LoRa modem over a serial port with KISS
// framing. The device is opened lazily in the background, so attaching a
// transport succeeds even when the hardware is not present yet; the
// connected flag stays false until the port opens.
type rnodeTransport struct {
	counters
	port    string
	config  meshstack.TransportConfig
	deliver deliverFunc

	mu   sync.Mutex
	dev  serial.Port
	done chan struct{}

	isConnected atomic.Bool
	closed      atomic.Bool
}

func newRNodeTransport(port string, config meshstack.TransportConfig, deliver deliverFunc) *rnodeTransport {
	t := &rnodeTransport{
		port:    port,
		config:  config,
		deliver: deliver,
		done:    make(chan struct{}),
	}
	go t.connectLoop()
	return t
}

func (t *rnodeTransport) handle() string { return t.port }

func (t *rnodeTransport) connected() bool { return t.isConnected.Load() }

func (t *rnodeTransport) status() meshstack.TransportStatus {
	return t.snapshot(t.connected())
}

// connectLoop keeps trying to open the serial device until the transport is
// closed, and reopens it after a read failure.
func (t *rnodeTransport) connectLoop() {
	for {
		select {
		case <-t.done:
			return
		default:
		}

		dev, err := serial.Open(t.port, &serial.Mode{BaudRate: t.config.BaudRate})
		if err != nil {
			logger.DebugCf("rnode", "open %s: %v", t.port, err)
			select {
			case <-t.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		t.mu.Lock()
		t.dev = dev
		t.mu.Unlock()
		t.isConnected.Store(true)
		logger.InfoCf("rnode", "connected to %s at %d baud", t.port, t.config.BaudRate)

		t.readLoop(dev)

		t.isConnected.Store(false)
		t.mu.Lock()
		t.dev = nil
		t.mu.Unlock()
		dev.Close()

		select {
		case <-t.done:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// readLoop consumes KISS frames from the device until a read error.
func (t *rnodeTransport) readLoop(dev serial.Port) {
	var frame []byte
	inFrame := false
	escaped := false
	buf := make([]byte, 4096)

	for {
		n, err := dev.Read(buf)
		if err != nil {
			if !t.closed.Load() {
				logger.WarnCf("rnode", "%s read: %v", t.port, err)
			}
			return
		}
		for _, b := range buf[:n] {
			switch {
			case b == kissFEND:
				if inFrame && len(frame) > 1 {
					// First byte after FEND is the KISS command.
					payload := make([]byte, len(frame)-1)
					copy(payload, frame[1:])
					t.received.Add(1)
					t.deliver(t.port, payload)
				}
				frame = frame[:0]
				inFrame = true
				escaped = false
			case !inFrame:
				// Discard noise between frames.
			case escaped:
				switch b {
				case kissTFEND:
					frame = append(frame, kissFEND)
				case kissTFESC:
					frame = append(frame, kissFESC)
				}
				escaped = false
			case b == kissFESC:
				escaped = true
			default:
				if len(frame) < maxFrameSize {
					frame = append(frame, b)
				}
			}
		}
	}
}

func (t *rnodeTransport) write(frame []byte) error {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()
	if dev == nil {
		return errNotConnected
	}

	if _, err := dev.Write(kissEscape(frame)); err != nil {
		return fmt.Errorf("rnode write: %w", err)
	}
	t.sent.Add(1)
	return nil
}

// kissEscape wraps a frame in KISS delimiters, escaping FEND and FESC.
func kissEscape(frame []byte) []byte {
	var out bytes.Buffer
	out.WriteByte(kissFEND)
	out.WriteByte(kissData)
	for _, b := range frame {
		switch b {
		case kissFEND:
			out.WriteByte(kissFESC)
			out.WriteByte(kissTFEND)
		case kissFESC:
			out.WriteByte(kissFESC)
			out.WriteByte(kissTFESC)
		default:
			out.WriteByte(b)
		}
	}
	out.WriteByte(kissFEND)
	return out.Bytes()
}

func (t *rnodeTransport) close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.done)

	t.mu.Lock()
	dev := t.dev
	t.dev = nil
	t.mu.Unlock()
	t.isConnected.Store(false)
	if dev != nil {
		return dev.Close()
	}
	return nil
}
