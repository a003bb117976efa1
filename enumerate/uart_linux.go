//go:build linux

package enumerate

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// tcgets is the POSIX ioctl request to fetch terminal attributes; a
// successful call is what distinguishes a tty device from an ordinary file
// living under the same /dev prefix.
const tcgets = uintptr(0x5401)

type termios struct {
	Iflag, Oflag, Cflag, Lflag uint32
	Line                       byte
	Cc                         [19]byte
}

// UARTPorts scans /dev for candidate serial devices and confirms each is a
// real tty via a TCGETS ioctl before listing it.
func UARTPorts() ([]PortInfo, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var usbIdx, acmIdx int
	var ports []PortInfo
	for _, e := range entries {
		name := e.Name()
		var display string
		switch {
		case strings.HasPrefix(name, "ttyUSB"):
			usbIdx++
			display = fmt.Sprintf("USBCOM%d", usbIdx)
		case strings.HasPrefix(name, "ttyACM"):
			acmIdx++
			display = fmt.Sprintf("COM%d", acmIdx)
		default:
			continue
		}

		path := "/dev/" + name
		if !isTTY(path) {
			continue
		}
		ports = append(ports, PortInfo{
			Path: path,
			Name: display,
			ID:   StablePortID(path),
		})
	}
	return ports, nil
}

func isTTY(path string) bool {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK|syscall.O_NOCTTY, 0)
	if err != nil {
		return false
	}
	defer syscall.Close(fd)

	var t termios
	err = ioctl.Ioctl(uintptr(fd), tcgets, uintptr(unsafe.Pointer(&t)))
	return err == nil
}
