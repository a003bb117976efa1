package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/sealabs/nmea0183drv/assembler"
	"github.com/sealabs/nmea0183drv/enumerate"
	"github.com/sealabs/nmea0183drv/internal/utils"
)

// Mode selects the UART's speed, or auto-baud probing.
type Mode int

const (
	// ModeDisabled means no UART device is open.
	ModeDisabled Mode = iota
	// ModeAuto cycles through autoBaudSequence until a valid NMEA sentence
	// is observed (glossary: "Auto mode (UART)").
	ModeAuto
	Mode4800
	Mode9600
	Mode19200
	Mode38400
	Mode57600
	Mode115200
)

// autoBaudSequence is the fixed order Auto mode cycles through, wrapping
// back to 4800 after 115200.
var autoBaudSequence = []int{4800, 9600, 19200, 38400, 57600, 115200}

func baudForMode(m Mode) (int, bool) {
	switch m {
	case Mode4800:
		return 4800, true
	case Mode9600:
		return 9600, true
	case Mode19200:
		return 19200, true
	case Mode38400:
		return 38400, true
	case Mode57600:
		return 57600, true
	case Mode115200:
		return 115200, true
	default:
		return 0, false
	}
}

// autoBaudCycle is how often Auto mode advances to the next speed absent a
// valid sentence.
const autoBaudCycle = 2 * time.Second

// lineTimeoutFactor: the read timeout is 25 byte-times at the current baud.
const lineTimeoutFactor = 25

// serialPort is the subset of *serial.Port the reader loop depends on,
// narrowed to an interface so tests can inject a fake port in place of a
// real device.
type serialPort interface {
	io.ReadWriteCloser
}

// openSerialFunc opens path at baud with an 8-N-1 read timeout. It is a
// package variable, not a method, so tests can swap it out without having
// to fake the whole tarm/serial.Config surface.
type openSerialFunc func(path string, baud int, readTimeout time.Duration) (serialPort, error)

func defaultOpenSerial(path string, baud int, readTimeout time.Duration) (serialPort, error) {
	return serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
	})
}

// lineTimeout returns 25 byte-times at baud, 8-N-1 (10 bit-times/byte).
func lineTimeout(baud int) time.Duration {
	charTime := time.Duration(float64(time.Second) * 10 / float64(baud))
	return lineTimeoutFactor * charTime
}

// UARTTransport owns one serial port, feeds it byte-by-byte to an
// assembler.Assembler, and in ModeAuto cycles through the standard bauds
// until a valid NMEA sentence proves the port's speed.
type UARTTransport struct {
	openSerial openSerialFunc
	debugLog   bool

	path string
	mode Mode

	port serialPort
	baud int

	// autoIndex/lastSpeedChange track the reader loop's position in
	// autoBaudSequence while in ModeAuto. Both are set by SetDevice at the
	// moment it opens the port at autoBaudSequence[0], so the reader loop
	// does not immediately treat a freshly opened port as due for its first
	// advance.
	autoIndex       int
	lastSpeedChange time.Time

	configure int32 // atomic bool: caller requests close+reopen
	started   int32 // atomic bool: reader has a port open and is running
	terminate int32 // atomic bool

	assembler *assembler.Assembler
	wg        sync.WaitGroup

	claimedPath string // non-empty while enumerate.ClaimPath holds this path
}

// UARTOption configures a UARTTransport at construction time.
type UARTOption func(*UARTTransport)

// WithDebugLogRawBytes enables fmt.Printf debug traces of every byte read.
func WithDebugLogRawBytes(enabled bool) UARTOption {
	return func(t *UARTTransport) { t.debugLog = enabled }
}

// NewUARTTransport creates a UARTTransport with no device open yet; call
// Start, then SetDevice to select a path and mode.
func NewUARTTransport(opts ...UARTOption) *UARTTransport {
	t := &UARTTransport{openSerial: defaultOpenSerial}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the reader goroutine. The transport has no device open
// until SetDevice is called; the reader idles (polling every 100ms) in the
// meantime.
func (t *UARTTransport) Start(listener Listener) error {
	t.assembler = assembler.New(listener)
	t.wg.Add(1)
	go t.readLoop()
	return nil
}

// Close stops the reader goroutine, closes any open port, and releases the
// assembler and any claimed path.
func (t *UARTTransport) Close() error {
	atomic.StoreInt32(&t.terminate, 1)
	t.wg.Wait()
	if t.assembler != nil {
		t.assembler.Close()
	}
	if t.claimedPath != "" {
		enumerate.ReleasePath(t.claimedPath)
		t.claimedPath = ""
	}
	return nil
}

// SetDevice selects the serial device to open and its mode, applying a
// two-phase configure/started handshake: the caller sets the configure
// latch, waits for the reader to acknowledge by closing any prior port and
// clearing started, performs the new open itself, then clears the latch and
// sets started. Calling SetDevice twice with identical arguments is
// equivalent to calling it once; the second call simply replaces the port
// with an identical one.
func (t *UARTTransport) SetDevice(path string, mode Mode) error {
	if mode == ModeDisabled {
		return t.closeDevice()
	}

	if t.claimedPath != path {
		if err := enumerate.ClaimPath(path); err != nil {
			return err
		}
	}

	atomic.StoreInt32(&t.configure, 1)
	for atomic.LoadInt32(&t.started) != 0 {
		time.Sleep(time.Millisecond)
	}

	if t.claimedPath != "" && t.claimedPath != path {
		enumerate.ReleasePath(t.claimedPath)
	}

	baud, ok := baudForMode(mode)
	if !ok {
		baud = autoBaudSequence[0]
	}
	port, err := t.openSerial(path, baud, lineTimeout(baud))
	if err != nil {
		atomic.StoreInt32(&t.configure, 0)
		enumerate.ReleasePath(path)
		return fmt.Errorf("transport: open uart %q: %w", path, err)
	}

	t.path = path
	t.mode = mode
	t.baud = baud
	t.port = port
	t.claimedPath = path
	t.assembler.SetSkipBroken(mode == ModeAuto)
	if mode == ModeAuto {
		t.autoIndex = 0
		t.lastSpeedChange = time.Now()
	}

	atomic.StoreInt32(&t.configure, 0)
	atomic.StoreInt32(&t.started, 1)
	return nil
}

func (t *UARTTransport) closeDevice() error {
	atomic.StoreInt32(&t.configure, 1)
	for atomic.LoadInt32(&t.started) != 0 {
		time.Sleep(time.Millisecond)
	}
	atomic.StoreInt32(&t.configure, 0)
	return nil
}

func (t *UARTTransport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, 1)

	for atomic.LoadInt32(&t.terminate) == 0 {
		if atomic.LoadInt32(&t.configure) != 0 {
			if t.port != nil {
				_ = t.port.Close()
				t.port = nil
			}
			atomic.StoreInt32(&t.started, 0)
			time.Sleep(pollInterval)
			continue
		}

		if t.port == nil {
			time.Sleep(pollInterval)
			continue
		}

		if t.mode == ModeAuto && time.Since(t.lastSpeedChange) > autoBaudCycle {
			t.autoIndex = (t.autoIndex + 1) % len(autoBaudSequence)
			if err := t.reopenAtBaud(autoBaudSequence[t.autoIndex]); err != nil {
				t.assembler.IOError()
				time.Sleep(pollInterval)
				continue
			}
			t.lastSpeedChange = time.Now()
		}

		n, err := t.port.Read(buf)
		now := time.Now()
		switch {
		case err == nil && n > 0:
			if t.debugLog {
				fmt.Printf("# DEBUG uart raw byte: %s\n", utils.FormatSpaces(buf[:n]))
			}
			if t.assembler.Submit(now, buf[:n]) && t.mode == ModeAuto {
				t.lastSpeedChange = now
			}
		case isTimeoutErr(err) || (err == nil && n == 0):
			t.assembler.Flush(lineTimeout(t.baud))
		default:
			t.assembler.IOError()
			_ = t.port.Close()
			t.port = nil
			atomic.StoreInt32(&t.started, 0)
			time.Sleep(pollInterval)
		}
	}

	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}
	atomic.StoreInt32(&t.started, 0)
}

// reopenAtBaud closes and reopens the current port at a new baud, used by
// the Auto-mode cycling inside the reader loop itself. No handshake is
// needed here: no caller outside the loop is waiting on it.
func (t *UARTTransport) reopenAtBaud(baud int) error {
	if t.port != nil {
		_ = t.port.Close()
	}
	port, err := t.openSerial(t.path, baud, lineTimeout(baud))
	if err != nil {
		t.port = nil
		return err
	}
	t.port = port
	t.baud = baud
	return nil
}

// ErrReadTimeout is the sentinel a fake serialPort returns in tests to
// simulate "no byte arrived before the deadline", standing in for the
// os.ErrDeadlineExceeded a real tarm/serial.Port surfaces.
var ErrReadTimeout = errors.New("transport: uart read timeout")

// isTimeoutErr reports whether err is the "no data within the configured
// read deadline" condition, as opposed to a real device error.
func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrReadTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
