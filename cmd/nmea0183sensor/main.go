package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sealabs/nmea0183drv/discover"
	"github.com/sealabs/nmea0183drv/driver"
)

func main() {
	uri := flag.String("uri", discover.URIUDP, "sensor uri to connect to (nmea://uart or nmea://udp)")
	devID := flag.String("dev-id", "", "device-id this instance is registered under")
	uartPort := flag.String("uart-port", "", "enumerated /uart/port id, omit to auto-scan")
	uartMode := flag.String("uart-mode", "", "uart baud/framing mode, e.g. 4800-8N1 (omit for Auto)")
	udpAddress := flag.String("udp-address", "", "enumerated /udp/address id, omit for any")
	udpPort := flag.String("udp-port", "", "udp listen port, omit for the default")
	warningTimeout := flag.String("warning-timeout", "", "seconds without data before WARNING, omit for the default")
	errorTimeout := flag.String("error-timeout", "", "seconds without data before ERROR, omit for the default")
	flag.Parse()

	params := make(map[string]string)
	if *devID != "" {
		params["/dev-id"] = *devID
	}
	if *uartPort != "" {
		params["/uart/port"] = *uartPort
	}
	if *uartMode != "" {
		params["/uart/mode"] = *uartMode
	}
	if *udpAddress != "" {
		params["/udp/address"] = *udpAddress
	}
	if *udpPort != "" {
		params["/udp/port"] = *udpPort
	}
	if *warningTimeout != "" {
		params["/timeout/warning"] = *warningTimeout
	}
	if *errorTimeout != "" {
		params["/timeout/error"] = *errorTimeout
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("# connecting to %v\n", *uri)
	d, err := driver.Connect(*uri, params, stdoutListener{})
	if err != nil {
		log.Fatal(err)
	}

	<-ctx.Done()
	fmt.Printf("# disconnecting %v\n", d.DevID())
	d.Disconnect()
}

// stdoutListener stands in for a real host application: it prints every
// block and status transition instead of routing them into a parameter-list
// or telemetry subsystem.
type stdoutListener struct{}

func (stdoutListener) OnSensorData(deviceName, sourceTag string, acquisitionTime time.Time, payload []byte) {
	fmt.Printf("[%s] %s %s: %s", deviceName, acquisitionTime.Format(time.RFC3339), sourceTag, payload)
}

func (stdoutListener) OnSensorLog(deviceName string, monotonicTime time.Time, level, message string) {
	fmt.Printf("# [%s] %s %s: %s\n", deviceName, monotonicTime.Format(time.RFC3339), level, message)
}

func (stdoutListener) OnDeviceState(deviceName string) {
	fmt.Printf("# [%s] state changed\n", deviceName)
}
