package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sealabs/nmea0183drv/assembler"
)

// minUDPPort is the smallest port the /udp/port schema option accepts.
const minUDPPort = 1024

// udpRecvBufferSize is the SO_RCVBUF value set on the bound socket.
const udpRecvBufferSize = 64 * 4096

// udpStagingBufferSize is the largest single datagram the transport will
// read.
const udpStagingBufferSize = 64 * 1024

// udpPollDeadline bounds how long one read blocks before the reader loop
// re-checks terminate/configure.
const udpPollDeadline = 100 * time.Millisecond

// UDPTransport owns one datagram socket and feeds each received datagram,
// whole, to an assembler.Assembler. Unlike UARTTransport it never calls
// Assembler.Flush: a UDP "no datagram arrived" read is not the same
// condition as UART's "partial sentence stalled mid-line", since sentences
// are never split across the idle gap the way a byte trickle can be.
type UDPTransport struct {
	conn *net.UDPConn

	configure int32
	started   int32
	terminate int32

	assembler *assembler.Assembler
	wg        sync.WaitGroup

	listenUDP func(network string, laddr *net.UDPAddr) (*net.UDPConn, error)
}

// NewUDPTransport creates a UDPTransport with no socket bound yet; call
// SetAddress before Start.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{listenUDP: net.ListenUDP}
}

// Start launches the reader goroutine. Like UARTTransport, the transport
// idles until SetAddress binds a socket.
func (t *UDPTransport) Start(listener Listener) error {
	t.assembler = assembler.New(listener)
	t.wg.Add(1)
	go t.readLoop()
	return nil
}

// Close stops the reader goroutine and releases the socket and assembler.
func (t *UDPTransport) Close() error {
	atomic.StoreInt32(&t.terminate, 1)
	t.wg.Wait()
	if t.assembler != nil {
		t.assembler.Close()
	}
	return nil
}

// SetAddress binds a datagram socket to ip:port. ip may be the literal
// "any" (INADDR_ANY) or "loopback" (127.0.0.1), or a dotted-quad IPv4
// address; port must be >= 1024. Applies the same two-phase
// configure/started handshake as UARTTransport.SetDevice.
func (t *UDPTransport) SetAddress(ip string, port int) error {
	if port < minUDPPort {
		return fmt.Errorf("transport: udp port %d below minimum %d", port, minUDPPort)
	}

	resolved, err := resolveUDPIP(ip)
	if err != nil {
		return err
	}

	atomic.StoreInt32(&t.configure, 1)
	for atomic.LoadInt32(&t.started) != 0 {
		time.Sleep(time.Millisecond)
	}

	conn, err := t.listenUDP("udp4", &net.UDPAddr{IP: resolved, Port: port})
	if err != nil {
		atomic.StoreInt32(&t.configure, 0)
		return fmt.Errorf("transport: bind udp %s:%d: %w", ip, port, err)
	}
	if err := setRecvBuffer(conn, udpRecvBufferSize); err != nil {
		_ = conn.Close()
		atomic.StoreInt32(&t.configure, 0)
		return fmt.Errorf("transport: set udp recv buffer: %w", err)
	}

	t.conn = conn
	atomic.StoreInt32(&t.configure, 0)
	atomic.StoreInt32(&t.started, 1)
	return nil
}

func resolveUDPIP(ip string) (net.IP, error) {
	switch ip {
	case "any":
		return net.IPv4zero, nil
	case "loopback":
		return net.IPv4(127, 0, 0, 1), nil
	default:
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			return nil, fmt.Errorf("transport: %q is not a dotted-quad IPv4 address", ip)
		}
		return parsed.To4(), nil
	}
}

// setRecvBuffer raises the socket's SO_RCVBUF on the underlying fd.
func setRecvBuffer(conn *net.UDPConn, size int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	buf := make([]byte, udpStagingBufferSize)

	for atomic.LoadInt32(&t.terminate) == 0 {
		if atomic.LoadInt32(&t.configure) != 0 {
			if t.conn != nil {
				_ = t.conn.Close()
				t.conn = nil
			}
			atomic.StoreInt32(&t.started, 0)
			time.Sleep(pollInterval)
			continue
		}

		if t.conn == nil {
			time.Sleep(pollInterval)
			continue
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(udpPollDeadline)); err != nil {
			t.assembler.IOError()
			time.Sleep(pollInterval)
			continue
		}

		// ReadFromUDP itself waits up to udpPollDeadline for a datagram, so
		// the timestamp is taken as soon as it returns: the reported time
		// then reflects when the datagram became available rather than when
		// the wait began.
		n, _, err := t.conn.ReadFromUDP(buf)
		now := time.Now()
		if err != nil {
			if isDeadlineErr(err) {
				continue // no datagram within this poll window; not an error
			}
			t.assembler.IOError()
			_ = t.conn.Close()
			t.conn = nil
			atomic.StoreInt32(&t.started, 0)
			time.Sleep(pollInterval)
			continue
		}

		t.assembler.Submit(now, buf[:n])
	}

	if t.conn != nil {
		_ = t.conn.Close()
		t.conn = nil
	}
	atomic.StoreInt32(&t.started, 0)
}

func isDeadlineErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
