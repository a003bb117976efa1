// Package discover builds the URI list and per-URI configuration/state
// schemas the host application uses to offer and configure NMEA sensors.
// It is a plain Go struct description of the recognized options; the host's
// own parameter-list machinery consumes these tables.
package discover

import (
	"fmt"
	"strings"

	"github.com/sealabs/nmea0183drv/enumerate"
)

// URI identifies one of the two transports this driver offers.
const (
	URIUART = "nmea://uart"
	URIUDP  = "nmea://udp"
)

// SensorInfo is one entry in the URI list returned by List.
type SensorInfo struct {
	Label string
	URI   string
}

// List returns the two fixed discoverable sensor kinds.
func List() []SensorInfo {
	return []SensorInfo{
		{Label: "UDP NMEA sensor", URI: URIUDP},
		{Label: "UART NMEA sensor", URI: URIUART},
	}
}

// OptionType is the primitive kind of one ConfigOption.
type OptionType int

const (
	TypeString OptionType = iota
	TypeDouble
	TypeInteger
	TypeEnum
)

// EnumValue is one selectable value of an enum-typed ConfigOption.
type EnumValue struct {
	ID    int
	Label string
}

// ConfigOption describes one recognized key in a URI's configuration
// schema.
type ConfigOption struct {
	Key     string
	Type    OptionType
	Default interface{}
	Min     float64 // for TypeDouble/TypeInteger ranges
	Max     float64
	Step    float64
	Enum    []EnumValue // for TypeEnum
}

// ConfigSchema is the full set of recognized options for one URI.
type ConfigSchema struct {
	URI     string
	Options []ConfigOption
}

// Lookup returns the option for key, or false if key is not recognized by
// this schema.
func (s ConfigSchema) Lookup(key string) (ConfigOption, bool) {
	for _, o := range s.Options {
		if o.Key == key {
			return o, true
		}
	}
	return ConfigOption{}, false
}

// Config builds the configuration schema for uri: the common keys
// (/dev-id, /timeout/warning, /timeout/error) plus the URI-specific ones
// (/uart/port, /uart/mode for nmea://uart; /udp/address, /udp/port for
// nmea://udp), each populated by live enumeration of ports/addresses.
// Returns an error if uri is not recognized.
func Config(uri string) (ConfigSchema, error) {
	normalized := strings.ToLower(uri)
	schema := ConfigSchema{URI: normalized}
	schema.Options = append(schema.Options,
		ConfigOption{Key: "/dev-id", Type: TypeString, Default: "nmea"},
		ConfigOption{Key: "/timeout/warning", Type: TypeDouble, Default: 5.0, Min: 0, Max: 30, Step: 1},
		ConfigOption{Key: "/timeout/error", Type: TypeDouble, Default: 30.0, Min: 30, Max: 60, Step: 1},
	)

	switch normalized {
	case URIUART:
		ports, err := enumerate.UARTPorts()
		if err != nil {
			return ConfigSchema{}, fmt.Errorf("discover: enumerate uart ports: %w", err)
		}
		portEnum := []EnumValue{{ID: 0, Label: "Auto"}}
		for _, p := range ports {
			portEnum = append(portEnum, EnumValue{ID: int(p.ID), Label: p.Name})
		}
		schema.Options = append(schema.Options,
			ConfigOption{Key: "/uart/port", Type: TypeEnum, Default: 0, Enum: portEnum},
			ConfigOption{Key: "/uart/mode", Type: TypeEnum, Default: "Auto", Enum: uartModeEnum},
		)
	case URIUDP:
		addrs, err := enumerate.LocalIPv4Addresses()
		if err != nil {
			return ConfigSchema{}, fmt.Errorf("discover: enumerate ipv4 addresses: %w", err)
		}
		addrEnum := []EnumValue{{ID: 0, Label: "any"}, {ID: 1, Label: "loopback"}}
		for _, a := range addrs {
			addrEnum = append(addrEnum, EnumValue{ID: int(enumerate.StableAddressID(a)), Label: a})
		}
		schema.Options = append(schema.Options,
			ConfigOption{Key: "/udp/address", Type: TypeEnum, Default: 0, Enum: addrEnum},
			ConfigOption{Key: "/udp/port", Type: TypeInteger, Default: 10000, Min: 1024, Max: 65535},
		)
	default:
		return ConfigSchema{}, fmt.Errorf("discover: unknown uri %q", uri)
	}

	return schema, nil
}

var uartModeEnum = []EnumValue{
	{ID: 0, Label: "Auto"},
	{ID: 1, Label: "4800-8N1"},
	{ID: 2, Label: "9600-8N1"},
	{ID: 3, Label: "19200-8N1"},
	{ID: 4, Label: "38400-8N1"},
	{ID: 5, Label: "57600-8N1"},
	{ID: 6, Label: "115200-8N1"},
}

// StateSchema describes the read-only parameter keys exposed for one
// connected device-id.
type StateSchema struct {
	DevID string
	// StatusKey is "/state/<dev-id>/status", a read-only enum {OK, WARNING,
	// ERROR}.
	StatusKey string
	// InfoKeys are "/info/<dev-id>/{name,drv,drv-version,drv-build-id}".
	InfoKeys []string
}

// State builds the state schema for a connected instance identified by
// devID.
func State(devID string) StateSchema {
	return StateSchema{
		DevID:     devID,
		StatusKey: fmt.Sprintf("/state/%s/status", devID),
		InfoKeys: []string{
			fmt.Sprintf("/info/%s/name", devID),
			fmt.Sprintf("/info/%s/drv", devID),
			fmt.Sprintf("/info/%s/drv-version", devID),
			fmt.Sprintf("/info/%s/drv-build-id", devID),
		},
	}
}
