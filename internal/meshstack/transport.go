package meshstack

import (
	"errors"
	"sync/atomic"

	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

var (
	// ErrTransportExists is returned when attaching a handle that is
	// already attached to the stack.
	ErrTransportExists = errors.New("transport already attached")
	// ErrTransportNotFound is returned for operations on a handle that is
	// not attached.
	ErrTransportNotFound = errors.New("transport not attached")
	// errNotConnected is returned by a transport write when the underlying
	// device or socket is not open.
	errNotConnected = errors.New("transport not connected")
)

// deliverFunc receives one raw inbound frame from a transport. Transports
// call it from their own read goroutines.
type deliverFunc func(handle string, raw []byte)

// transport is a network or radio interface attached to the stack.
type transport interface {
	handle() string
	connected() bool
	status() meshstack.TransportStatus
	write(frame []byte) error
	close() error
}

// counters tracks per-transport frame I/O. Embedded by every driver.
type counters struct {
	sent     atomic.Uint64
	received atomic.Uint64
}

func (c *counters) snapshot(connected bool) meshstack.TransportStatus {
	return meshstack.TransportStatus{
		Connected:        connected,
		MessagesSent:     c.sent.Load(),
		MessagesReceived: c.received.Load(),
	}
}
