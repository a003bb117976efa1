package enumerate

import (
	"fmt"
	"sync"
)

// claimedPaths tracks which UART device paths are currently opened by a
// driver instance in this process, so two instances never fight over the
// same serial port.
var claimedPaths = struct {
	mu    sync.Mutex
	paths map[string]bool
}{paths: make(map[string]bool)}

// ClaimPath reserves path for the caller's exclusive use. It returns an
// error if path is already claimed by another Driver instance.
func ClaimPath(path string) error {
	claimedPaths.mu.Lock()
	defer claimedPaths.mu.Unlock()
	if claimedPaths.paths[path] {
		return fmt.Errorf("enumerate: %q is already claimed by another driver instance", path)
	}
	claimedPaths.paths[path] = true
	return nil
}

// ReleasePath releases a path previously reserved with ClaimPath. It is a
// no-op if path was not claimed.
func ReleasePath(path string) {
	claimedPaths.mu.Lock()
	defer claimedPaths.mu.Unlock()
	delete(claimedPaths.paths, path)
}
