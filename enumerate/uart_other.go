//go:build !linux

package enumerate

// UARTPorts on non-Linux platforms returns no devices. The concrete
// enumeration backend targets Linux (see uart_linux.go); a Windows backend
// would slot in here behind the same signature, enumerating the Ports
// device class and reading each entry's registry PortName.
func UARTPorts() ([]PortInfo, error) {
	return nil, nil
}
