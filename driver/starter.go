package driver

import (
	"sync/atomic"
	"time"

	"github.com/sealabs/nmea0183drv/discover"
	"github.com/sealabs/nmea0183drv/enumerate"
	"github.com/sealabs/nmea0183drv/transport"
)

// starterLoop is the "direct connect" supervisor strategy, used for a fixed
// UART port id or for any nmea://udp connection.
func (d *Driver) starterLoop() {
	defer d.wg.Done()

	for atomic.LoadInt32(&d.terminate) == 0 {
		if tr := d.slot.get(); tr != nil {
			d.checkData()
		} else if d.uri == discover.URIUART {
			d.tryOpenUART()
		} else {
			d.tryOpenUDP()
		}
		time.Sleep(pollInterval)
	}
}

// tryOpenUART resolves the configured uart-port-id against the current
// enumeration and opens it, binding the slot unconditionally (the starter
// never races with another goroutine for it).
func (d *Driver) tryOpenUART() {
	ports, err := enumerate.UARTPorts()
	if err != nil {
		return
	}

	var path string
	for _, p := range ports {
		if p.ID == d.params.UARTPortID {
			path = p.Path
			break
		}
	}
	if path == "" {
		return
	}

	tr := transport.NewUARTTransport()
	if err := tr.Start(innerListener{d: d}); err != nil {
		return
	}
	if err := tr.SetDevice(path, d.params.UARTMode); err != nil {
		_ = tr.Close()
		return
	}
	d.slot.set(tr)
}

// tryOpenUDP resolves the configured udp-address-id and opens a socket on
// (address, udp-port), binding the slot unconditionally.
func (d *Driver) tryOpenUDP() {
	address, ok := d.resolveUDPAddress()
	if !ok {
		return
	}

	tr := transport.NewUDPTransport()
	if err := tr.Start(innerListener{d: d}); err != nil {
		return
	}
	if err := tr.SetAddress(address, d.params.UDPPort); err != nil {
		_ = tr.Close()
		return
	}
	d.slot.set(tr)
}

func (d *Driver) resolveUDPAddress() (string, bool) {
	switch d.params.UDPAddressID {
	case 0:
		return "any", true
	case 1:
		return "loopback", true
	}

	addrs, err := enumerate.LocalIPv4Addresses()
	if err != nil {
		return "", false
	}
	for _, a := range addrs {
		if enumerate.StableAddressID(a) == d.params.UDPAddressID {
			return a, true
		}
	}
	return "", false
}
