// Package transport implements the two byte sources the driver reads NMEA
// 0183 data from: a UART (serial) line and an IPv4 UDP socket. Both own an
// *assembler.Assembler and feed it bytes/datagrams from a single reader
// goroutine; neither transport interprets the bytes itself.
package transport

import (
	"time"

	"github.com/sealabs/nmea0183drv/assembler"
)

// Listener is the assembler.Listener alias used at the transport boundary.
// Both transports and the supervisor that consumes them share the very same
// Listener the assembler already defines; there is no separate
// transport-level event type.
type Listener = assembler.Listener

// Transport is the common operation set of UARTTransport and UDPTransport.
// The supervisor in package driver holds its current transport as this
// interface type and never type-switches on the concrete transport.
//
// The two implementations differ on one point of flush behavior, kept
// deliberate rather than unified: UARTTransport calls Assembler.Flush on
// every empty read, UDPTransport never flushes (see UDPTransport).
type Transport interface {
	// Start begins the transport's background reader goroutine, which feeds
	// bytes/datagrams to an internal *assembler.Assembler and delivers that
	// assembler's events to listener. Start returns once the reader
	// goroutine has been launched.
	Start(listener Listener) error
	// Close signals the reader goroutine to stop, waits for it to exit, and
	// releases the underlying device/socket.
	Close() error
}

// pollInterval is the poll/sleep used throughout both reader loops: between
// configure-latch checks, while no device is open, and after retrying a
// failed read.
const pollInterval = 100 * time.Millisecond
