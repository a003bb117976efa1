package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sealabs/nmea0183drv/discover"
	"github.com/sealabs/nmea0183drv/transport"
)

// defaultWarningTimeout/defaultErrorTimeout mirror the schema defaults.
const (
	defaultWarningTimeout = 5 * time.Second
	defaultErrorTimeout   = 30 * time.Second
	defaultUDPPort        = 10000
)

// Params is the parsed, validated configuration for one Connect call.
type Params struct {
	DevID string

	// UARTPortID is the /uart/port value: 0 means Auto (launch the
	// scanner), any other value is matched against enumerate.StablePortID.
	UARTPortID uint32
	UARTMode   transport.Mode

	// UDPAddressID is the /udp/address value: 0 = "any", 1 = "loopback",
	// otherwise matched against enumerate.StableAddressID.
	UDPAddressID uint32
	UDPPort      int

	WarningTimeout time.Duration
	ErrorTimeout   time.Duration
}

// parseParams validates raw against uri's configuration schema and returns
// the typed Params, or an error for any unknown key or value that fails to
// parse or range-check.
func parseParams(uri string, raw map[string]string) (Params, error) {
	schema, err := discover.Config(uri)
	if err != nil {
		return Params{}, err
	}

	p := Params{
		DevID:          "nmea",
		UARTMode:       transport.ModeAuto,
		UDPPort:        defaultUDPPort,
		WarningTimeout: defaultWarningTimeout,
		ErrorTimeout:   defaultErrorTimeout,
	}

	for key, value := range raw {
		opt, ok := schema.Lookup(key)
		if !ok {
			return Params{}, fmt.Errorf("driver: unknown parameter %q for %s", key, uri)
		}
		if err := applyParam(&p, opt, value); err != nil {
			return Params{}, fmt.Errorf("driver: parameter %q: %w", key, err)
		}
	}

	return p, nil
}

func applyParam(p *Params, opt discover.ConfigOption, value string) error {
	switch opt.Key {
	case "/dev-id":
		if value == "" {
			return fmt.Errorf("must not be empty")
		}
		p.DevID = value

	case "/timeout/warning":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < opt.Min || v > opt.Max {
			return fmt.Errorf("must be a number in [%v, %v]", opt.Min, opt.Max)
		}
		p.WarningTimeout = time.Duration(v * float64(time.Second))

	case "/timeout/error":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < opt.Min || v > opt.Max {
			return fmt.Errorf("must be a number in [%v, %v]", opt.Min, opt.Max)
		}
		p.ErrorTimeout = time.Duration(v * float64(time.Second))

	case "/uart/port":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("must be an enumerated port id")
		}
		p.UARTPortID = uint32(v)

	case "/uart/mode":
		mode, ok := parseUARTMode(value)
		if !ok {
			return fmt.Errorf("must be one of %v", uartModeLabels())
		}
		p.UARTMode = mode

	case "/udp/address":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("must be an enumerated address id")
		}
		p.UDPAddressID = uint32(v)

	case "/udp/port":
		v, err := strconv.Atoi(value)
		if err != nil || float64(v) < opt.Min || float64(v) > opt.Max {
			return fmt.Errorf("must be an integer in [%v, %v]", opt.Min, opt.Max)
		}
		p.UDPPort = v

	default:
		return fmt.Errorf("unsupported key")
	}
	return nil
}

var uartModeNames = map[string]transport.Mode{
	"auto":       transport.ModeAuto,
	"4800-8n1":   transport.Mode4800,
	"9600-8n1":   transport.Mode9600,
	"19200-8n1":  transport.Mode19200,
	"38400-8n1":  transport.Mode38400,
	"57600-8n1":  transport.Mode57600,
	"115200-8n1": transport.Mode115200,
}

func parseUARTMode(value string) (transport.Mode, bool) {
	mode, ok := uartModeNames[strings.ToLower(value)]
	return mode, ok
}

func uartModeLabels() []string {
	out := make([]string, 0, len(uartModeNames))
	for k := range uartModeNames {
		out = append(out, k)
	}
	return out
}
