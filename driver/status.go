package driver

import "sync/atomic"

// Status is the three-valued health of a driver instance, backed by an
// int32 so it can be read/written with sync/atomic.
type Status int32

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// statusCell is an atomically-mutated Status, with a compare-and-swap
// helper used by checkData to avoid regressing a concurrently-arriving OK
// back down to WARNING.
type statusCell struct {
	v int32
}

func newStatusCell(initial Status) *statusCell {
	return &statusCell{v: int32(initial)}
}

func (c *statusCell) load() Status {
	return Status(atomic.LoadInt32(&c.v))
}

func (c *statusCell) store(s Status) {
	atomic.StoreInt32(&c.v, int32(s))
}

func (c *statusCell) compareAndSwap(old, new Status) bool {
	return atomic.CompareAndSwapInt32(&c.v, int32(old), int32(new))
}
