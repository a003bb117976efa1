// Package driver supervises one NMEA sensor connection: it owns a transport
// (UART or UDP), starts either the direct-connect ("starter") or UART
// auto-scan ("scanner") loop, tracks data-timeout status, and restarts the
// transport on I/O error.
package driver

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sealabs/nmea0183drv/assembler"
	"github.com/sealabs/nmea0183drv/discover"
	"github.com/sealabs/nmea0183drv/transport"
)

// pollInterval is the supervisor loops' tick.
const pollInterval = 100 * time.Millisecond

// probeSweepTimeout bounds one UART scan sweep before all probes are
// released and re-opened, picking up newly plugged devices.
const probeSweepTimeout = 25 * time.Second

// Listener receives the host-facing events: one call per emitted block, and
// one pair of calls per status transition.
type Listener interface {
	// OnSensorData delivers one assembled block. sourceTag is always
	// "NMEA"; it is carried as a field rather than hardcoded into the call
	// so a future transport kind could reuse this interface.
	OnSensorData(deviceName, sourceTag string, acquisitionTime time.Time, payload []byte)
	// OnSensorLog delivers one human-readable status-transition message.
	OnSensorLog(deviceName string, monotonicTime time.Time, level, message string)
	// OnDeviceState accompanies each status transition.
	OnDeviceState(deviceName string)
}

// sourceTagNMEA is the fixed source tag carried with every block.
const sourceTagNMEA = "NMEA"

// Driver is one connected instance created by Connect and torn down by
// Disconnect.
type Driver struct {
	uri    string
	params Params

	listener Listener

	enabled int32 // atomic bool: sensor.enable(name, bool)

	connectedAt time.Time

	slot        transportSlot
	status      *statusCell
	prevStatus  *statusCell
	dataTimerUs int64 // atomic: monotonic microseconds of last block
	ioErrorSeen int32 // atomic bool, latched by innerListener.OnIOError

	terminate int32
	wg        sync.WaitGroup

	configSchema discover.ConfigSchema
	stateSchema  discover.StateSchema
}

// CheckConnect reports whether uri and rawParams describe a configuration
// Connect would accept. It opens no device and starts no goroutine, so the
// host can probe a candidate configuration before committing to it.
func CheckConnect(uri string, rawParams map[string]string) error {
	normalized := strings.ToLower(uri)
	if normalized != discover.URIUART && normalized != discover.URIUDP {
		return fmt.Errorf("driver: unknown uri %q", uri)
	}
	_, err := parseParams(normalized, rawParams)
	return err
}

// Connect validates params against uri's configuration schema and, on
// success, starts the supervisor loop appropriate to uri. It never blocks
// on device I/O: configuration errors are returned synchronously and no
// goroutine is started.
func Connect(uri string, rawParams map[string]string, listener Listener) (*Driver, error) {
	normalized := strings.ToLower(uri)
	if normalized != discover.URIUART && normalized != discover.URIUDP {
		return nil, fmt.Errorf("driver: unknown uri %q", uri)
	}

	params, err := parseParams(normalized, rawParams)
	if err != nil {
		return nil, err
	}

	configSchema, err := discover.Config(normalized)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		uri:          normalized,
		params:       params,
		listener:     listener,
		enabled:      1,
		connectedAt:  time.Now(),
		status:       newStatusCell(StatusError),
		prevStatus:   newStatusCell(StatusError),
		configSchema: configSchema,
		stateSchema:  discover.State(params.DevID),
	}

	d.wg.Add(1)
	if normalized == discover.URIUART && params.UARTPortID == 0 {
		go d.scannerLoop()
	} else {
		go d.starterLoop()
	}

	return d, nil
}

// Disconnect stops the supervisor loop and closes the current transport, if
// any. It returns once every background goroutine this instance owns has
// exited.
func (d *Driver) Disconnect() {
	atomic.StoreInt32(&d.terminate, 1)
	d.wg.Wait()
	if tr := d.slot.get(); tr != nil {
		_ = tr.Close()
		d.slot.clear()
	}
}

// Enable toggles emission of sensor-data events; the transport keeps
// running for health purposes regardless.
func (d *Driver) Enable(enable bool) {
	v := int32(0)
	if enable {
		v = 1
	}
	atomic.StoreInt32(&d.enabled, v)
}

func (d *Driver) isEnabled() bool {
	return atomic.LoadInt32(&d.enabled) != 0
}

// Status returns the current health of this instance.
func (d *Driver) Status() Status {
	return d.status.load()
}

// DevID returns the configured (or defaulted) device-id this instance was
// connected with.
func (d *Driver) DevID() string {
	return d.params.DevID
}

// ConfigSchema returns the schema Connect validated rawParams against.
func (d *Driver) ConfigSchema() discover.ConfigSchema {
	return d.configSchema
}

// StateSchema returns this instance's read-only state schema.
func (d *Driver) StateSchema() discover.StateSchema {
	return d.stateSchema
}

// GetParam serves the "/state/<dev-id>/status" read and the read-only
// "/info/<dev-id>/..." driver-identity strings.
func (d *Driver) GetParam(key string) (string, bool) {
	if key == d.stateSchema.StatusKey {
		return d.Status().String(), true
	}
	if len(d.stateSchema.InfoKeys) == 4 {
		switch key {
		case d.stateSchema.InfoKeys[0]: // name
			return productName, true
		case d.stateSchema.InfoKeys[1]: // drv
			return driverName, true
		case d.stateSchema.InfoKeys[2]: // drv-version
			return Version, true
		case d.stateSchema.InfoKeys[3]: // drv-build-id
			return BuildID, true
		}
	}
	return "", false
}

// innerListener bridges one transport's assembler.Listener events into the
// driver's own bookkeeping: data timer, status, and the host callback.
type innerListener struct {
	d *Driver
}

func (l innerListener) OnBlock(b assembler.Block) {
	atomic.StoreInt64(&l.d.dataTimerUs, b.Time.UnixMicro())
	l.d.status.store(StatusOK)

	if !l.d.isEnabled() {
		return
	}
	l.d.listener.OnSensorData(l.d.params.DevID, sourceTagNMEA, b.Time, b.Payload)
}

func (l innerListener) OnIOError() {
	atomic.StoreInt32(&l.d.ioErrorSeen, 1)
}

// probeListener is installed on each transient UART probe during a scan
// sweep. Before being claimed it behaves like a tester: the first valid
// block races to claim the scanner's transport slot. After being claimed
// it behaves exactly like innerListener; the rewiring of handlers is a mode
// switch here rather than a swap of which listener object the assembler
// holds.
type probeListener struct {
	d       *Driver
	tr      transport.Transport
	claimed int32 // atomic bool
}

func (l *probeListener) OnBlock(b assembler.Block) {
	if atomic.LoadInt32(&l.claimed) == 0 {
		if !l.d.slot.claim(l.tr) {
			return // lost the race; the scanner releases this probe next tick
		}
		atomic.StoreInt32(&l.claimed, 1)
	}

	atomic.StoreInt64(&l.d.dataTimerUs, b.Time.UnixMicro())
	l.d.status.store(StatusOK)
	if l.d.isEnabled() {
		l.d.listener.OnSensorData(l.d.params.DevID, sourceTagNMEA, b.Time, b.Payload)
	}
}

func (l *probeListener) OnIOError() {
	// An unclaimed probe failing is routine during a sweep; only a claimed
	// transport's errors reach the supervisor.
	if atomic.LoadInt32(&l.claimed) != 0 {
		atomic.StoreInt32(&l.d.ioErrorSeen, 1)
	}
}
