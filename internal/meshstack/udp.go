package meshstack

import (
	"fmt"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/meshbridge/rnsbridge-go/pkg/logger"
	"github.com/meshbridge/rnsbridge-go/pkg/meshstack"
)

// maxFrameSize bounds a single inbound datagram or serial frame.
const maxFrameSize = 65535

// udpTransport is the software network interface. It listens on a bound
// address and writes frames to a fixed target, typically the subnet
// broadcast address.
type udpTransport struct {
	counters
	name    string
	conn    *net.UDPConn
	target  *net.UDPAddr
	deliver deliverFunc
	closed  atomic.Bool
}

func newUDPTransport(cfg InterfaceConfig, deliver deliverFunc) (*udpTransport, error) {
	listenAddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %q: %w", cfg.Listen, err)
	}

	var target *net.UDPAddr
	if cfg.Target != "" {
		target, err = net.ResolveUDPAddr("udp", cfg.Target)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("resolve target address %q: %w", cfg.Target, err)
		}
		if target.IP.Equal(net.IPv4bcast) {
			enableBroadcast(conn)
		}
	}

	t := &udpTransport{
		name:    cfg.Name,
		conn:    conn,
		target:  target,
		deliver: deliver,
	}
	go t.readLoop()
	return t, nil
}

// enableBroadcast sets SO_BROADCAST so writes to 255.255.255.255 succeed.
// Failure is non-fatal; sends will simply report errors later.
func enableBroadcast(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		if err := syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1); err != nil {
			logger.WarnCf("udp", "enable broadcast: %v", err)
		}
	})
}

func (t *udpTransport) handle() string { return t.name }

func (t *udpTransport) connected() bool { return !t.closed.Load() }

func (t *udpTransport) status() meshstack.TransportStatus {
	return t.snapshot(t.connected())
}

// localAddr reports the bound address, used by tests that listen on :0.
func (t *udpTransport) localAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *udpTransport) write(frame []byte) error {
	if t.closed.Load() {
		return errNotConnected
	}
	if t.target == nil {
		return errNotConnected
	}
	if _, err := t.conn.WriteToUDP(frame, t.target); err != nil {
		return fmt.Errorf("udp write: %w", err)
	}
	t.sent.Add(1)
	return nil
}

func (t *udpTransport) readLoop() {
	buf := make([]byte, maxFrameSize)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if !t.closed.Load() {
				logger.WarnCf("udp", "interface %s read: %v", t.name, err)
			}
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		t.received.Add(1)
		t.deliver(t.name, frame)
	}
}

func (t *udpTransport) close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}
