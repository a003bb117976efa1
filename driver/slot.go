package driver

import (
	"sync"

	"github.com/sealabs/nmea0183drv/transport"
)

// transportSlot holds the driver's at-most-one bound transport. claim is a
// compare-and-swap: it succeeds only when the slot is currently empty,
// which is what lets the scanner's concurrent probes race for one winner
// without a data race. The claim-once guarantee is expressed with a narrow
// mutex rather than sync/atomic; no I/O or listener callback ever runs
// while the lock is held.
type transportSlot struct {
	mu sync.Mutex
	tr transport.Transport
}

// claim binds tr as the slot's transport if and only if the slot was empty,
// reporting whether this call won the race.
func (s *transportSlot) claim(tr transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr != nil {
		return false
	}
	s.tr = tr
	return true
}

// set unconditionally installs tr, used by the starter (which never races
// with another goroutine for the slot).
func (s *transportSlot) set(tr transport.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tr = tr
}

func (s *transportSlot) get() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}

func (s *transportSlot) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tr = nil
}
