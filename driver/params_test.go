package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealabs/nmea0183drv/transport"
)

func TestParseParams_Defaults(t *testing.T) {
	p, err := parseParams("nmea://udp", nil)
	require.NoError(t, err)
	assert.Equal(t, "nmea", p.DevID)
	assert.Equal(t, defaultUDPPort, p.UDPPort)
	assert.Equal(t, defaultWarningTimeout, p.WarningTimeout)
	assert.Equal(t, defaultErrorTimeout, p.ErrorTimeout)
}

func TestParseParams_UnknownKeyRejected(t *testing.T) {
	_, err := parseParams("nmea://udp", map[string]string{"/bogus": "1"})
	assert.Error(t, err)
}

func TestParseParams_UARTKeyRejectedForUDP(t *testing.T) {
	_, err := parseParams("nmea://udp", map[string]string{"/uart/port": "0"})
	assert.Error(t, err)
}

func TestParseParams_WarningTimeoutOutOfRange(t *testing.T) {
	_, err := parseParams("nmea://udp", map[string]string{"/timeout/warning": "31"})
	assert.Error(t, err)
}

func TestParseParams_UDPPortBelowMinimum(t *testing.T) {
	_, err := parseParams("nmea://udp", map[string]string{"/udp/port": "80"})
	assert.Error(t, err)
}

func TestParseParams_UARTMode(t *testing.T) {
	p, err := parseParams("nmea://uart", map[string]string{"/uart/mode": "115200-8N1"})
	require.NoError(t, err)
	assert.Equal(t, transport.Mode115200, p.UARTMode)
}

func TestParseParams_UARTModeUnknown(t *testing.T) {
	_, err := parseParams("nmea://uart", map[string]string{"/uart/mode": "bogus"})
	assert.Error(t, err)
}

func TestParseParams_DevID(t *testing.T) {
	p, err := parseParams("nmea://uart", map[string]string{"/dev-id": "gps1"})
	require.NoError(t, err)
	assert.Equal(t, "gps1", p.DevID)
}
