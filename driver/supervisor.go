package driver

import (
	"sync/atomic"
	"time"
)

// checkData runs the data-timeout/io-error status state machine, once per
// supervisor tick regardless of whether the starter or scanner loop is
// driving it.
func (d *Driver) checkData() {
	ioError := atomic.CompareAndSwapInt32(&d.ioErrorSeen, 1, 0)
	if ioError {
		if tr := d.slot.get(); tr != nil {
			_ = tr.Close()
			d.slot.clear()
		}
		d.status.store(StatusError)
	} else {
		lastUs := atomic.LoadInt64(&d.dataTimerUs)
		var sinceLast time.Duration
		if lastUs == 0 {
			sinceLast = time.Since(d.connectedAt) // no block received yet
		} else {
			sinceLast = time.Since(time.UnixMicro(lastUs))
		}

		switch {
		case sinceLast > d.params.ErrorTimeout:
			d.status.store(StatusError)
		case sinceLast > d.params.WarningTimeout:
			d.status.compareAndSwap(StatusOK, StatusWarning)
		}
	}

	cur := d.status.load()
	if d.prevStatus.load() == cur {
		return
	}

	message := statusMessage(cur, ioError)
	now := time.Now()
	d.listener.OnSensorLog(d.params.DevID, now, "INFO", message)
	d.listener.OnDeviceState(d.params.DevID)
	d.prevStatus.store(cur)
}

// statusMessage produces the three human-readable variants logged on a
// status transition: operational, temporary error, and error-plus-
// disconnect-note.
func statusMessage(s Status, ioError bool) string {
	switch s {
	case StatusOK:
		return "The sensor is fully operational."
	case StatusWarning:
		return "Temporary error while receiving data."
	default:
		if ioError {
			return "An error occurred while receiving data, port disconnected."
		}
		return "An error occurred while receiving data."
	}
}
