package driver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealabs/nmea0183drv/assembler"
	"github.com/sealabs/nmea0183drv/discover"
)

// recordingListener is a driver.Listener double that records every event
// under a mutex so tests can assert on them without racing the supervisor
// goroutine.
type recordingListener struct {
	mu     sync.Mutex
	data   []string
	logs   []string
	states []string
}

func (l *recordingListener) OnSensorData(deviceName, sourceTag string, acquisitionTime time.Time, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, string(payload))
}

func (l *recordingListener) OnSensorLog(deviceName string, monotonicTime time.Time, level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, message)
}

func (l *recordingListener) OnDeviceState(deviceName string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, deviceName)
}

func (l *recordingListener) stateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states)
}

func (l *recordingListener) lastLog() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.logs) == 0 {
		return ""
	}
	return l.logs[len(l.logs)-1]
}

func TestConnect_UnknownURIRejected(t *testing.T) {
	_, err := Connect("nmea://bogus", nil, &recordingListener{})
	assert.Error(t, err)
}

func TestCheckConnect(t *testing.T) {
	assert.NoError(t, CheckConnect("nmea://udp", nil))
	assert.NoError(t, CheckConnect("NMEA://UDP", map[string]string{"/udp/port": "10110"}))
	assert.Error(t, CheckConnect("nmea://bogus", nil))
	assert.Error(t, CheckConnect("nmea://udp", map[string]string{"/uart/port": "0"}))
	assert.Error(t, CheckConnect("nmea://udp", map[string]string{"/timeout/error": "999"}))
}

func TestConnect_InvalidParamRejectedSynchronously(t *testing.T) {
	_, err := Connect("nmea://udp", map[string]string{"/udp/port": "1"}, &recordingListener{})
	assert.Error(t, err)
}

func TestConnect_ValidUDPStartsAndDisconnectsCleanly(t *testing.T) {
	l := &recordingListener{}
	d, err := Connect("nmea://udp", nil, l)
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, "nmea", d.DevID())
	assert.Equal(t, StatusError, d.Status()) // no data yet

	done := make(chan struct{})
	go func() {
		d.Disconnect()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not quiesce in time")
	}
}

func TestDriver_EnableGatesSensorData(t *testing.T) {
	l := &recordingListener{}
	d := &Driver{
		params:      Params{DevID: "gps"},
		listener:    l,
		enabled:     0,
		connectedAt: time.Now(),
		status:      newStatusCell(StatusError),
		prevStatus:  newStatusCell(StatusError),
	}

	inner := innerListener{d: d}
	inner.OnBlock(assembler.Block{Time: time.Now(), Payload: []byte("$GPGGA*00\r\n")})
	assert.Empty(t, l.data, "disabled driver must not forward sensor data")
	assert.Equal(t, StatusOK, d.Status(), "status still updates while disabled")

	d.Enable(true)
	inner.OnBlock(assembler.Block{Time: time.Now(), Payload: []byte("$GPGGA*00\r\n")})
	assert.Len(t, l.data, 1)
}

func TestDriver_GetParamStatusKey(t *testing.T) {
	d := &Driver{
		params:      Params{DevID: "gps"},
		status:      newStatusCell(StatusWarning),
		prevStatus:  newStatusCell(StatusWarning),
		stateSchema: discover.State("gps"),
	}

	v, ok := d.GetParam(d.stateSchema.StatusKey)
	require.True(t, ok)
	assert.Equal(t, "WARNING", v)

	_, ok = d.GetParam("/state/gps/bogus")
	assert.False(t, ok)
}

func TestDriver_GetParamInfoKeys(t *testing.T) {
	d := &Driver{
		params:      Params{DevID: "gps"},
		status:      newStatusCell(StatusOK),
		prevStatus:  newStatusCell(StatusOK),
		stateSchema: discover.State("gps"),
	}

	v, ok := d.GetParam("/info/gps/name")
	require.True(t, ok)
	assert.Equal(t, "NMEA-0183", v)

	v, ok = d.GetParam("/info/gps/drv")
	require.True(t, ok)
	assert.Equal(t, "nmea", v)

	v, ok = d.GetParam("/info/gps/drv-version")
	require.True(t, ok)
	assert.Equal(t, Version, v)

	v, ok = d.GetParam("/info/gps/drv-build-id")
	require.True(t, ok)
	assert.Equal(t, BuildID, v)
}

func TestCheckData_TransitionsToErrorOnIOError(t *testing.T) {
	l := &recordingListener{}
	tr := &fakeTransport{}
	d := &Driver{
		params:      Params{DevID: "gps", WarningTimeout: time.Second, ErrorTimeout: 2 * time.Second},
		listener:    l,
		connectedAt: time.Now(),
		status:      newStatusCell(StatusOK),
		prevStatus:  newStatusCell(StatusOK),
	}
	d.slot.set(tr)
	d.ioErrorSeen = 1

	d.checkData()

	assert.Equal(t, StatusError, d.Status())
	assert.Nil(t, d.slot.get(), "errored transport must be released from the slot")
	assert.Equal(t, int32(1), tr.closed)
	assert.Equal(t, 1, l.stateCount())
	assert.Contains(t, l.lastLog(), "port disconnected")
}

func TestCheckData_WarningAfterTimeoutNoData(t *testing.T) {
	l := &recordingListener{}
	d := &Driver{
		params:      Params{DevID: "gps", WarningTimeout: 10 * time.Millisecond, ErrorTimeout: time.Hour},
		listener:    l,
		connectedAt: time.Now().Add(-20 * time.Millisecond),
		status:      newStatusCell(StatusOK),
		prevStatus:  newStatusCell(StatusOK),
	}

	d.checkData()

	assert.Equal(t, StatusWarning, d.Status())
}

func TestCheckData_NoTransitionNoCallback(t *testing.T) {
	l := &recordingListener{}
	d := &Driver{
		params:      Params{DevID: "gps", WarningTimeout: time.Hour, ErrorTimeout: 2 * time.Hour},
		listener:    l,
		connectedAt: time.Now(),
		status:      newStatusCell(StatusOK),
		prevStatus:  newStatusCell(StatusOK),
	}

	d.checkData()

	assert.Equal(t, StatusOK, d.Status())
	assert.Equal(t, 0, l.stateCount())
}

func TestProbeListener_FirstBlockWinsSlotRace(t *testing.T) {
	l := &recordingListener{}
	d := &Driver{
		params:      Params{DevID: "gps"},
		listener:    l,
		enabled:     1,
		connectedAt: time.Now(),
		status:      newStatusCell(StatusError),
		prevStatus:  newStatusCell(StatusError),
	}

	winner := &fakeTransport{}
	loser := &fakeTransport{}
	pw := &probeListener{d: d, tr: winner}
	pl := &probeListener{d: d, tr: loser}

	pw.OnBlock(assembler.Block{Time: time.Now(), Payload: []byte("$GPGGA*00\r\n")})
	pl.OnBlock(assembler.Block{Time: time.Now(), Payload: []byte("$GPGGA*00\r\n")})

	assert.Same(t, winner, d.slot.get().(*fakeTransport))
	assert.Len(t, l.data, 1, "the losing probe's block must not reach the host listener")
}

func TestProbeListener_IOErrorOnlyLatchesAfterClaim(t *testing.T) {
	d := &Driver{
		params:      Params{DevID: "gps"},
		listener:    &recordingListener{},
		connectedAt: time.Now(),
		status:      newStatusCell(StatusError),
		prevStatus:  newStatusCell(StatusError),
	}

	tr := &fakeTransport{}
	pl := &probeListener{d: d, tr: tr}

	pl.OnIOError()
	assert.Equal(t, int32(0), d.ioErrorSeen, "an unclaimed probe's failure is routine")

	pl.OnBlock(assembler.Block{Time: time.Now(), Payload: []byte("$GPGGA*00\r\n")})
	pl.OnIOError()
	assert.Equal(t, int32(1), d.ioErrorSeen)
}
