// Package enumerate discovers UART devices and local IPv4 addresses that
// the driver supervisor can bind to, and assigns each a stable identifier
// derived from its OS path or address.
package enumerate

import (
	"hash/fnv"
	"net"
	"sort"
)

// PortInfo describes one enumerated UART device.
type PortInfo struct {
	// Path is the OS device path, e.g. "/dev/ttyUSB0".
	Path string
	// Name is the display name, e.g. "USBCOM1" or "COM1".
	Name string
	// ID is a stable hash of Path, used as the /uart/port schema value.
	ID uint32
}

// StablePortID hashes a UART device path into the identifier advertised by
// the /uart/port schema option and stored in driver configuration.
func StablePortID(path string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return h.Sum32()
}

// StableAddressID hashes a dotted-quad IPv4 address into the identifier
// advertised by the /udp/address schema option.
func StableAddressID(ip string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return h.Sum32()
}

// LocalIPv4Addresses returns every IPv4 address bound to a local interface,
// formatted as dotted-quad, in a stable (sorted) order.
func LocalIPv4Addresses() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		out = append(out, v4.String())
	}
	sort.Strings(out)
	return out, nil
}
