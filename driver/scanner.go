package driver

import (
	"sync/atomic"
	"time"

	"github.com/sealabs/nmea0183drv/enumerate"
	"github.com/sealabs/nmea0183drv/transport"
)

// probe is one transient UART transport opened during a scan sweep.
type probe struct {
	tr *transport.UARTTransport
}

// scannerLoop is the UART auto-discovery supervisor strategy, used when
// /uart/port is left at its reserved Auto value (0): every enumerated UART
// is opened in Auto mode and raced against the others; the first to yield a
// valid NMEA block is claimed as the bound transport and the rest are
// released.
func (d *Driver) scannerLoop() {
	defer d.wg.Done()

	var probes []probe
	var sweepStart time.Time

	for atomic.LoadInt32(&d.terminate) == 0 {
		if tr := d.slot.get(); tr != nil {
			if len(probes) > 0 {
				probes = releaseLosingProbes(probes, tr)
			}
			d.checkData()
		} else if len(probes) == 0 {
			probes = d.startProbeSweep()
			sweepStart = time.Now()
		} else if time.Since(sweepStart) > probeSweepTimeout {
			closeProbes(probes)
			probes = nil
		}

		time.Sleep(pollInterval)
	}

	closeProbes(probes)
	if tr := d.slot.get(); tr != nil {
		_ = tr.Close()
		d.slot.clear()
	}
}

// startProbeSweep opens one UARTTransport per currently enumerated device,
// each in Auto mode, each routed to a probeListener.
func (d *Driver) startProbeSweep() []probe {
	ports, err := enumerate.UARTPorts()
	if err != nil {
		return nil
	}

	probes := make([]probe, 0, len(ports))
	for _, p := range ports {
		tr := transport.NewUARTTransport()
		pl := &probeListener{d: d, tr: tr}
		if err := tr.Start(pl); err != nil {
			continue
		}
		if err := tr.SetDevice(p.Path, transport.ModeAuto); err != nil {
			_ = tr.Close()
			continue
		}
		probes = append(probes, probe{tr: tr})
	}
	return probes
}

// releaseLosingProbes closes every probe except the one whose transport
// was claimed (it is already the driver's bound transport, so it must not
// be closed here).
func releaseLosingProbes(probes []probe, winner transport.Transport) []probe {
	for _, p := range probes {
		if p.tr == winner {
			continue
		}
		_ = p.tr.Close()
	}
	return nil
}

func closeProbes(probes []probe) {
	for _, p := range probes {
		_ = p.tr.Close()
	}
}
