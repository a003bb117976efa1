package driver

// productName is the advertised product name of this driver.
const productName = "NMEA-0183"

// driverName is the short driver identifier used in info keys.
const driverName = "nmea"

// Version and BuildID identify the running build. Both are meant to be
// stamped at link time:
//
//	go build -ldflags "-X github.com/sealabs/nmea0183drv/driver.Version=1.2.0 \
//	                   -X github.com/sealabs/nmea0183drv/driver.BuildID=a1b2c3"
var (
	Version = "dev"
	BuildID = "unknown"
)
